package aurgate

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMenuTransition(t *testing.T) {
	tests := []struct {
		merged   bool
		input    string
		effect   reviewEffect
		approved bool
	}{
		{merged: true, input: "s", effect: effectStaticAnalysis},
		{merged: true, input: "d", effect: effectShowDiff},
		{merged: true, input: "t", effect: effectShell},
		{merged: true, input: "o", effect: effectNone, approved: true},
		{merged: true, input: "m", effect: effectNone},
		{merged: true, input: "", effect: effectNone},
		{merged: false, input: "d", effect: effectShowDiff},
		{merged: false, input: "m", effect: effectMerge},
		{merged: false, input: "t", effect: effectShell},
		{merged: false, input: "s", effect: effectNone},
		{merged: false, input: "o", effect: effectNone},
		{merged: false, input: "ok", effect: effectNone},
	}
	for _, tt := range tests {
		effect, approved := menuTransition(tt.merged, tt.input)
		assert.Equal(t, tt.effect, effect, "merged=%t input=%q", tt.merged, tt.input)
		assert.Equal(t, tt.approved, approved, "merged=%t input=%q", tt.merged, tt.input)
	}
}

func TestMenuTransitionNeverApprovesUnmerged(t *testing.T) {
	for c := rune(0); c < 128; c++ {
		for _, input := range []string{string(c), strings.Repeat(string(c), 2), "o" + string(c)} {
			_, approved := menuTransition(false, input)
			assert.False(t, approved, "input %q", input)
		}
	}
}

type reviewFixture struct {
	cfg      *Config
	log      *eventLog
	vcs      *fakeVCS
	builder  *fakeBuilder
	out      *bytes.Buffer
	reviewer *Reviewer
}

func newReviewFixture(t *testing.T, answers ...string) *reviewFixture {
	t.Helper()
	cfg := newTestConfig(t)
	log := &eventLog{}
	f := &reviewFixture{
		cfg:     cfg,
		log:     log,
		vcs:     &fakeVCS{log: log, merged: map[string]bool{}, revs: map[string]string{}},
		builder: &fakeBuilder{log: log},
		out:     &bytes.Buffer{},
	}
	f.reviewer = &Reviewer{
		Config:    cfg,
		VCS:       f.vcs,
		Builder:   f.builder,
		Shell:     &fakeShell{log: log},
		Input:     &scriptedInput{answers: answers},
		BuildDirs: &BuildDirs{Config: cfg},
		Out:       f.out,
	}
	return f
}

func TestReviewClonesIntoEmptyDirectory(t *testing.T) {
	f := newReviewFixture(t, "o")
	f.vcs.merged["foo"] = true

	cached, err := f.reviewer.Review(context.Background(), "foo")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []string{"init foo"}, f.log.events)
	assert.FileExists(t, filepath.Join(f.cfg.ReviewDir("foo"), "PKGBUILD"))
}

func TestReviewFetchesExistingCheckout(t *testing.T) {
	f := newReviewFixture(t, "o")
	f.vcs.merged["foo"] = true
	writeFile(t, filepath.Join(f.cfg.ReviewDir("foo"), "PKGBUILD"), "pkgname=foo")

	_, err := f.reviewer.Review(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch foo"}, f.log.events)
}

func TestReviewRequiresMergeBeforeApproval(t *testing.T) {
	f := newReviewFixture(t, "o", "s", "d", "m", "o")

	cached, err := f.reviewer.Review(context.Background(), "foo")
	require.NoError(t, err)
	assert.False(t, cached)

	assert.Equal(t, []string{"init foo", "diff foo unmerged=true", "merge foo"}, f.log.events)
	assert.Empty(t, f.builder.analyzed)

	text := f.out.String()
	assert.Contains(t, text, "[O]=(cannot use the package until you merge)")
	assert.Contains(t, text, "[S]=(shellcheck not available until you merge)")
	assert.Contains(t, text, "[O]=ok, use package")
}

func TestReviewMergedMenuEffects(t *testing.T) {
	f := newReviewFixture(t, "s", "d", "t", "x", "o")
	f.vcs.merged["foo"] = true
	f.vcs.identical = true

	_, err := f.reviewer.Review(context.Background(), "foo")
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(f.cfg.ReviewDir("foo"), "PKGBUILD")}, f.builder.analyzed)
	assert.Equal(t, []bool{false}, f.vcs.diffs)
	assert.True(t, f.log.has("shell foo SHELL bash"))
	assert.Contains(t, f.out.String(), "[D]=(identical to upstream, empty diff)")
	assert.Contains(t, f.out.String(), "Changes that you make will be merged with upstream updates in future.")
}

func TestReviewOffersCachedBuild(t *testing.T) {
	tests := []struct {
		name       string
		answers    []string
		wantCached bool
	}{
		{name: "keep", answers: []string{"c"}, wantCached: true},
		{name: "rebuild", answers: []string{"r", "o"}, wantCached: false},
		{name: "anything else rebuilds", answers: []string{"yes", "o"}, wantCached: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReviewFixture(t, tt.answers...)
			f.vcs.merged["foo"] = true
			f.vcs.revs["foo"] = "abc1234"
			writeFile(t, filepath.Join(f.cfg.ReviewDir("foo"), "PKGBUILD"), "pkgname=foo")
			_, err := f.reviewer.BuildDirs.Create(context.Background(), "foo", "abc1234")
			require.NoError(t, err)
			writeFile(t, filepath.Join(f.cfg.BuildDir("foo"), "foo-1.0-1-x86_64.pkg.tar.zst"), "x")

			cached, err := f.reviewer.Review(context.Background(), "foo")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCached, cached)
			assert.Contains(t, f.out.String(), "Use existing build (same commit)? [R]=rebuild, [C]=use cached.")
		})
	}
}

func TestReviewSkipsCacheOfferWhenStale(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f *reviewFixture)
		merged bool
	}{
		{
			name:   "different revision",
			merged: true,
			setup: func(t *testing.T, f *reviewFixture) {
				f.vcs.revs["foo"] = "new5678"
				_, err := f.reviewer.BuildDirs.Create(context.Background(), "foo", "old1234")
				require.NoError(t, err)
				writeFile(t, filepath.Join(f.cfg.BuildDir("foo"), "foo-1.0-1-x86_64.pkg.tar.zst"), "x")
			},
		},
		{
			name:   "no archives",
			merged: true,
			setup: func(t *testing.T, f *reviewFixture) {
				f.vcs.revs["foo"] = "abc1234"
				_, err := f.reviewer.BuildDirs.Create(context.Background(), "foo", "abc1234")
				require.NoError(t, err)
			},
		},
		{
			name:   "upstream not merged",
			merged: false,
			setup: func(t *testing.T, f *reviewFixture) {
				f.vcs.revs["foo"] = "abc1234"
				_, err := f.reviewer.BuildDirs.Create(context.Background(), "foo", "abc1234")
				require.NoError(t, err)
				writeFile(t, filepath.Join(f.cfg.BuildDir("foo"), "foo-1.0-1-x86_64.pkg.tar.zst"), "x")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReviewFixture(t, "m", "o")
			f.vcs.merged["foo"] = tt.merged
			writeFile(t, filepath.Join(f.cfg.ReviewDir("foo"), "PKGBUILD"), "pkgname=foo")
			tt.setup(t, f)

			cached, err := f.reviewer.Review(context.Background(), "foo")
			require.NoError(t, err)
			assert.False(t, cached)
			assert.NotContains(t, f.out.String(), "Use existing build")
		})
	}
}

func TestReviewAbortsOnClosedInput(t *testing.T) {
	f := newReviewFixture(t)
	f.vcs.merged["foo"] = true

	_, err := f.reviewer.Review(context.Background(), "foo")
	assert.ErrorIs(t, err, ErrAborted)
}
