package aurgate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalReader(t *testing.T) {
	r := NewTerminalReader(strings.NewReader("  O \nYes\nlast"))

	for _, want := range []string{"o", "yes", "last"} {
		got, err := r.ReadLineLowercase()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := r.ReadLineLowercase()
	assert.ErrorIs(t, err, ErrAborted)
}

func TestAskForConfirmation(t *testing.T) {
	tests := []struct {
		name    string
		answers []string
		want    bool
		reads   int
	}{
		{name: "empty defaults to yes", answers: []string{""}, want: true, reads: 1},
		{name: "explicit no", answers: []string{"no"}, want: false, reads: 1},
		{name: "invalid re-prompts", answers: []string{"maybe", "y"}, want: true, reads: 2},
		{name: "closed input is no", answers: nil, want: false, reads: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &scriptedInput{answers: tt.answers}
			assert.Equal(t, tt.want, askForConfirmation(in, colNote, "Install %d package(s)?", 2))
			assert.Equal(t, tt.reads, in.read)
		})
	}
}
