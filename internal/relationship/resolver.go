package relationship

import (
	"context"
	"fmt"
)

// RelationshipReader は可視性判定に必要な関係の読み取りインターフェース。
type RelationshipReader interface {
	ListFollowedIDs(ctx context.Context, userID string) ([]string, error)
	ListBlockPartnerIDs(ctx context.Context, userID string) ([]string, error)
}

// Visibility は閲覧者から見たフォロー集合とブロック集合。
// 集合の順序は保証しない。
type Visibility struct {
	ViewerID string
	followed map[string]struct{}
	blocked  map[string]struct{}
}

// NewVisibility はIDの一覧からVisibilityを組み立てる。
func NewVisibility(viewerID string, followedIDs, blockedIDs []string) *Visibility {
	return &Visibility{
		ViewerID: viewerID,
		followed: toSet(followedIDs),
		blocked:  toSet(blockedIDs),
	}
}

// IsVisible は作成者の投稿が閲覧者に見えるかを返す。
// 自分自身か、フォロー中かつブロック関係がない相手のみ見える。
func (v *Visibility) IsVisible(authorID string) bool {
	if authorID == v.ViewerID {
		return true
	}
	return v.IsFollowing(authorID) && !v.IsBlocked(authorID)
}

// IsFollowing は閲覧者がauthorIDをフォローしているかを返す。
func (v *Visibility) IsFollowing(authorID string) bool {
	_, ok := v.followed[authorID]
	return ok
}

// IsBlocked はauthorIDとの間にどちらかの方向のブロック関係があるかを返す。
func (v *Visibility) IsBlocked(authorID string) bool {
	_, ok := v.blocked[authorID]
	return ok
}

// HasAnyFollow は閲覧者が1人以上フォローしているかを返す。
func (v *Visibility) HasAnyFollow() bool {
	return len(v.followed) > 0
}

// AuthorIDs は閲覧者自身とフォロー先のうち、ブロック関係のないIDを返す。
func (v *Visibility) AuthorIDs() []string {
	ids := make([]string, 0, len(v.followed)+1)
	ids = append(ids, v.ViewerID)
	for id := range v.followed {
		if id != v.ViewerID && !v.IsBlocked(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// BlockedIDs はブロック関係にあるIDを返す。
func (v *Visibility) BlockedIDs() []string {
	ids := make([]string, 0, len(v.blocked))
	for id := range v.blocked {
		ids = append(ids, id)
	}
	return ids
}

// Resolver は閲覧者ごとのVisibilityを算出する。
// 呼び出しごとにストアから読み直し、キャッシュしない。
type Resolver struct {
	reader RelationshipReader
}

// NewResolver はResolverを生成する。
func NewResolver(reader RelationshipReader) *Resolver {
	return &Resolver{reader: reader}
}

// Resolve は閲覧者のフォロー集合とブロック集合（両方向の和集合）を取得する。
func (r *Resolver) Resolve(ctx context.Context, viewerID string) (*Visibility, error) {
	followedIDs, err := r.reader.ListFollowedIDs(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("フォロー先の取得に失敗しました: %w", err)
	}
	blockedIDs, err := r.reader.ListBlockPartnerIDs(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("ブロック関係の取得に失敗しました: %w", err)
	}
	return NewVisibility(viewerID, followedIDs, blockedIDs), nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
