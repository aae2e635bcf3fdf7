package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

func TestCreatePost_LoadsAuthor(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedProfile(t, db, "u1", "alice")

	img := "https://cdn/x.png"
	p, err := CreatePost(ctx, db, "u1", "hello world", &img)
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if p.ID == "" || p.Author == nil || p.Author.Username != "alice" {
		t.Fatalf("author not loaded: %+v", p)
	}
	if p.ImageURL == nil || *p.ImageURL != img || p.LikesCount != 0 || p.CommentsCount != 0 {
		t.Fatalf("unexpected fields: %+v", p)
	}
}

func TestListPosts_OrderFilterAndPaging(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedProfile(t, db, "u1", "alice")
	seedProfile(t, db, "u2", "bob")

	base := time.Now().UTC().Add(-time.Hour)
	seedPost(t, db, "p1", "u1", "first", base)
	seedPost(t, db, "p2", "u2", "second", base.Add(time.Minute))
	seedPost(t, db, "p3", "u1", "third", base.Add(2*time.Minute))

	all, err := ListPosts(ctx, db, "", 0, 10)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(all) != 3 || all[0].ID != "p3" || all[2].ID != "p1" {
		t.Fatalf("expected newest first, got %v", ids(all))
	}
	if all[1].Author == nil || all[1].Author.Username != "bob" {
		t.Fatalf("author not preloaded")
	}

	mine, _ := ListPosts(ctx, db, "u1", 0, 10)
	if len(mine) != 2 {
		t.Fatalf("author filter: got %v", ids(mine))
	}

	page, _ := ListPosts(ctx, db, "", 1, 1)
	if len(page) != 1 || page[0].ID != "p2" {
		t.Fatalf("paging: got %v", ids(page))
	}

	if err := DeletePost(ctx, db, "p3"); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if err := DeletePost(ctx, db, "p3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
	if _, err := GetPost(ctx, db, "p3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted post should be hidden, got %v", err)
	}
	left, _ := ListPosts(ctx, db, "", 0, 10)
	if len(left) != 2 {
		t.Fatalf("deleted post still listed: %v", ids(left))
	}
}

func TestToggleLike_CountsAndState(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedProfile(t, db, "u1", "alice")
	seedProfile(t, db, "u2", "bob")
	seedPost(t, db, "p1", "u1", "post", time.Now().UTC())

	toggle := func(user string) (bool, int) {
		t.Helper()
		var liked bool
		var n int
		err := db.Transaction(func(tx *gorm.DB) error {
			var err error
			liked, n, err = ToggleLike(ctx, tx, "p1", user)
			return err
		})
		if err != nil {
			t.Fatalf("ToggleLike: %v", err)
		}
		return liked, n
	}

	if liked, n := toggle("u2"); !liked || n != 1 {
		t.Fatalf("first like: liked=%v n=%d", liked, n)
	}
	if liked, n := toggle("u1"); !liked || n != 2 {
		t.Fatalf("second user like: liked=%v n=%d", liked, n)
	}
	if liked, n := toggle("u2"); liked || n != 1 {
		t.Fatalf("unlike: liked=%v n=%d", liked, n)
	}

	got, err := LikedPostIDs(ctx, db, "u1", []string{"p1", "p-missing"})
	if err != nil || !got["p1"] || got["p-missing"] {
		t.Fatalf("LikedPostIDs: %v %v", got, err)
	}
	if got, _ := LikedPostIDs(ctx, db, "u2", []string{"p1"}); got["p1"] {
		t.Fatalf("u2 unliked p1")
	}

	if _, _, err := ToggleLike(ctx, db, "missing", "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing post, got %v", err)
	}
}

func TestToggleLike_ConcurrentUsersKeepCounterConsistent(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedProfile(t, db, "u1", "alice")
	seedPost(t, db, "p1", "u1", "post", time.Now().UTC())
	users := []string{"ua", "ub", "uc", "ud"}
	for _, u := range users {
		seedProfile(t, db, u, "user_"+u)
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_ = db.Transaction(func(tx *gorm.DB) error {
				_, _, err := ToggleLike(ctx, tx, "p1", u)
				return err
			})
		}(u)
	}
	wg.Wait()

	p, err := GetPost(ctx, db, "p1")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	var rows int64
	db.Table("post_likes").Where("post_id = ?", "p1").Count(&rows)
	if int64(p.LikesCount) != rows {
		t.Fatalf("likes_count %d diverged from rows %d", p.LikesCount, rows)
	}
}

func TestSearchPostCandidates(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedProfile(t, db, "u1", "alice")
	now := time.Now().UTC()
	seedPost(t, db, "p1", "u1", "Learning Go generics", now)
	seedPost(t, db, "p2", "u1", "Coffee and code", now.Add(time.Second))
	seedPost(t, db, "p3", "u1", "Nothing here", now.Add(2*time.Second))

	got, err := SearchPostCandidates(ctx, db, []string{"go", "coffee"}, 10)
	if err != nil {
		t.Fatalf("SearchPostCandidates: %v", err)
	}
	if len(got) != 2 || got[0].ID != "p2" {
		t.Fatalf("expected p2,p1 newest first; got %v", ids(got))
	}
	if got, _ := SearchPostCandidates(ctx, db, nil, 10); got != nil {
		t.Fatalf("no tokens should return nil")
	}
}

func ids(posts []domain.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}
