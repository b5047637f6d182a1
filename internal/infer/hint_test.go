package infer

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestRetryHint_Empty(t *testing.T) {
	assert.Equal(t, "", retryHint(nil))
}

func TestRetryHint_ListsErrors(t *testing.T) {
	hint := retryHint([]string{"/claims: missing properties: 'claims'", "/x: bad"})
	assert.Contains(t, hint, "IMPORTANT:")
	assert.Contains(t, hint, "/claims: missing properties: 'claims'; /x: bad")
	assert.True(t, strings.HasSuffix(hint, "You MUST respond with ONLY a valid JSON object."))
}

func TestRetryHint_Bounded(t *testing.T) {
	var errs []string
	for i := 0; i < 50; i++ {
		errs = append(errs, fmt.Sprintf("/claims/%d: %s", i, strings.Repeat("é", 400)))
	}

	hint := retryHint(errs)
	assert.LessOrEqual(t, len(hint), maxHintLen)
	assert.True(t, utf8.ValidString(hint))
	assert.Contains(t, hint, "and 45 more")
	assert.NotContains(t, hint, "/claims/5:")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))

	got := truncate("ééééé", 6)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 6)
}
