package media

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// isHTMLContentType はContent-TypeがHTMLページを示すかどうかを返す。
func isHTMLContentType(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// findCoverImageURL は書籍ページなどのHTMLのheadから表紙画像のURLを探す。
// og:image を優先し、無ければ twitter:image、link rel="image_src" の順に使う。
// 相対URLはbaseURLを基準に絶対URLへ解決する。見つからない場合は空文字を返す。
func findCoverImageURL(htmlBody []byte, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	var ogImage, twitterImage, imageSrc string
	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))

loop:
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			break loop

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)
			if tagName == "body" {
				break loop
			}
			if !hasAttr || (tagName != "meta" && tagName != "link") {
				continue
			}

			attrs := make(map[string]string, 4)
			for {
				key, val, more := tokenizer.TagAttr()
				attrs[strings.ToLower(string(key))] = strings.TrimSpace(string(val))
				if !more {
					break
				}
			}

			switch tagName {
			case "meta":
				name := strings.ToLower(attrs["property"])
				if name == "" {
					name = strings.ToLower(attrs["name"])
				}
				switch name {
				case "og:image", "og:image:url", "og:image:secure_url":
					if ogImage == "" {
						ogImage = attrs["content"]
					}
				case "twitter:image", "twitter:image:src":
					if twitterImage == "" {
						twitterImage = attrs["content"]
					}
				}
			case "link":
				if strings.ToLower(attrs["rel"]) == "image_src" && imageSrc == "" {
					imageSrc = attrs["href"]
				}
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				break loop
			}
		}
	}

	for _, candidate := range []string{ogImage, twitterImage, imageSrc} {
		if candidate == "" {
			continue
		}
		ref, err := url.Parse(candidate)
		if err != nil {
			continue
		}
		return base.ResolveReference(ref).String()
	}
	return ""
}
