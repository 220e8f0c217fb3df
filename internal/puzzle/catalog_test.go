package puzzle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeHistory struct {
	done []Completion
}

func (h *fakeHistory) Completions(context.Context, string, Kind) ([]Completion, error) {
	return h.done, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCatalog(h History, policy CooldownPolicy) *Catalog {
	c := NewCatalog(Builtin(), h, "classic", policy)
	c.now = func() time.Time { return testNow }
	return c
}

func TestNextPuzzleRotation(t *testing.T) {
	ctx := context.Background()
	h := &fakeHistory{}
	c := newTestCatalog(h, CooldownPolicy{})

	a, err := c.NextPuzzle(ctx, "pair-1", KindCrossword)
	if err != nil {
		t.Fatalf("next puzzle: %v", err)
	}
	if a.PuzzleID != "cw-0001" || a.Branch != "classic" || a.Kind != KindCrossword {
		t.Errorf("unexpected first assignment: %+v", a)
	}

	h.done = []Completion{{PuzzleID: "cw-0001", CompletedAt: testNow.Add(-48 * time.Hour)}}
	a, _ = c.NextPuzzle(ctx, "pair-1", KindCrossword)
	if a.PuzzleID != "cw-0002" {
		t.Errorf("expected cw-0002 after cw-0001, got %s", a.PuzzleID)
	}

	// Everything played: the least recently completed comes back.
	h.done = append(h.done, Completion{PuzzleID: "cw-0002", CompletedAt: testNow.Add(-24 * time.Hour)})
	a, _ = c.NextPuzzle(ctx, "pair-1", KindCrossword)
	if a.PuzzleID != "cw-0001" {
		t.Errorf("expected wrap to cw-0001, got %s", a.PuzzleID)
	}
}

func TestNextPuzzleCooldown(t *testing.T) {
	ctx := context.Background()
	h := &fakeHistory{done: []Completion{
		{PuzzleID: "cw-0001", CompletedAt: testNow.Add(-30 * time.Hour)},
		{PuzzleID: "cw-0002", CompletedAt: testNow.Add(-3 * time.Hour)},
		{PuzzleID: "cw-0001", CompletedAt: testNow.Add(-2 * time.Hour)},
	}}
	c := newTestCatalog(h, CooldownPolicy{Batch: 2, Window: 12 * time.Hour})

	_, err := c.NextPuzzle(ctx, "pair-1", KindCrossword)
	if !errors.Is(err, ErrPuzzleOnCooldown) {
		t.Fatalf("expected cooldown, got %v", err)
	}
	var ce *CooldownError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CooldownError, got %T", err)
	}
	if want := testNow.Add(9 * time.Hour); !ce.RetryAt.Equal(want) {
		t.Errorf("expected retry at %s, got %s", want, ce.RetryAt)
	}

	c.policy.Batch = 3
	if _, err := c.NextPuzzle(ctx, "pair-1", KindCrossword); err != nil {
		t.Errorf("expected no cooldown below batch size, got %v", err)
	}
}

func TestNextPuzzleEmptyBranch(t *testing.T) {
	c := NewCatalog(Builtin(), &fakeHistory{}, "spring", CooldownPolicy{})
	_, err := c.NextPuzzle(context.Background(), "pair-1", KindWordSearch)
	if !errors.Is(err, ErrPuzzleNotFound) {
		t.Errorf("expected ErrPuzzleNotFound, got %v", err)
	}
}

type countingSource struct {
	Source
	reads atomic.Int32
}

func (s *countingSource) Read(ctx context.Context, kind Kind, branch, id string) ([]byte, error) {
	s.reads.Add(1)
	return s.Source.Read(ctx, kind, branch, id)
}

func TestLoadCaches(t *testing.T) {
	src := &countingSource{Source: Builtin()}
	c := NewCatalog(src, &fakeHistory{}, "classic", CooldownPolicy{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Load(context.Background(), KindWordSearch, "ws-0001", ""); err != nil {
				t.Errorf("load: %v", err)
			}
		}()
	}
	wg.Wait()

	def, err := c.Load(context.Background(), KindWordSearch, "ws-0001", "classic")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def.ID != "ws-0001" {
		t.Errorf("expected ws-0001, got %s", def.ID)
	}
	if n := src.reads.Load(); n < 1 || n > 8 {
		t.Errorf("unexpected read count %d", n)
	}
	before := src.reads.Load()
	c.Load(context.Background(), KindWordSearch, "ws-0001", "classic")
	if src.reads.Load() != before {
		t.Error("cached definition was read again")
	}

	if _, err := c.Load(context.Background(), KindWordSearch, "ws-9999", "classic"); !errors.Is(err, ErrPuzzleNotFound) {
		t.Errorf("expected ErrPuzzleNotFound, got %v", err)
	}
}

func TestFSSource(t *testing.T) {
	fsys := fstest.MapFS{
		"crossword/spring/b.json":     {Data: []byte(`{}`)},
		"crossword/spring/a.json":     {Data: []byte(`{"id":"a"}`)},
		"crossword/spring/README.md":  {Data: []byte(`notes`)},
		"crossword/spring/old/c.json": {Data: []byte(`{}`)},
	}
	src := NewFSSource(fsys)

	ids, err := src.List(context.Background(), KindCrossword, "spring")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("expected [a b], got %v", ids)
	}

	ids, err = src.List(context.Background(), KindWordSearch, "spring")
	if err != nil || len(ids) != 0 {
		t.Errorf("expected empty listing, got %v %v", ids, err)
	}

	if _, err := src.Read(context.Background(), KindCrossword, "spring", "zzz"); !errors.Is(err, ErrPuzzleNotFound) {
		t.Errorf("expected ErrPuzzleNotFound, got %v", err)
	}
}

func TestLoadRejectsMismatchedID(t *testing.T) {
	fsys := fstest.MapFS{
		"word_search/classic/ws-a.json": {Data: []byte(`{"id":"renamed","grid":["LOVE","ABCD"],"words":["LOVE"]}`)},
	}
	c := NewCatalog(NewFSSource(fsys), &fakeHistory{}, "classic", CooldownPolicy{})

	if _, err := c.Load(context.Background(), KindWordSearch, "ws-a", "classic"); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected ErrInvalidDefinition, got %v", err)
	}
	// A failed load is not cached as a success.
	if _, err := c.Load(context.Background(), KindWordSearch, "ws-a", "classic"); !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("expected ErrInvalidDefinition on reload, got %v", err)
	}
}

type fakeS3 struct {
	objects map[string]string
	pages   int
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.pages++
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	// Two pages: the continuation token selects the second half.
	half := len(keys) / 2
	out := &s3.ListObjectsV2Output{}
	chunk := keys[:half]
	if in.ContinuationToken != nil {
		chunk = keys[half:]
	} else {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String("next")
	}
	for _, k := range chunk {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(body)))}, nil
}

func TestS3Source(t *testing.T) {
	ctx := context.Background()
	client := &fakeS3{objects: map[string]string{
		"word_search/classic/ws-0002.json": `{"id":"ws-0002","grid":["AB","CD"],"words":["AB"]}`,
		"word_search/classic/ws-0001.json": `{"id":"ws-0001","grid":["AB","CD"],"words":["CD"]}`,
		"word_search/classic/notes.txt":    "",
		"word_search/classic/x/ws-9.json":  "",
	}}
	src := NewS3Source(client, "duet-puzzles")

	ids, err := src.List(ctx, KindWordSearch, "classic")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "ws-0001" || ids[1] != "ws-0002" {
		t.Errorf("expected [ws-0001 ws-0002], got %v", ids)
	}
	if client.pages != 2 {
		t.Errorf("expected 2 list pages, got %d", client.pages)
	}

	c := NewCatalog(src, &fakeHistory{}, "classic", CooldownPolicy{})
	def, err := c.Load(ctx, KindWordSearch, "ws-0002", "classic")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !def.WordSearch.HasWord("AB") {
		t.Error("expected AB in word list")
	}

	if _, err := src.Read(ctx, KindWordSearch, "classic", "missing"); !errors.Is(err, ErrPuzzleNotFound) {
		t.Errorf("expected ErrPuzzleNotFound, got %v", err)
	}
}
