package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	k := QuoteKey("0xabc", "buy:0:10")
	assert.Equal(t, "0xabc:buy:0:10", k)
	assert.Equal(t, "0xabc", marketOf(k))
	assert.Equal(t, "", marketOf("plain"))

	assert.Equal(t, "overtime:quote:0xabc:buy:0:10", quoteKey(k))
	assert.Equal(t, "overtime:quote-index:0xabc", quoteIndexKey("0xabc"))
	assert.Equal(t, "overtime:lock:keeper", lockKey("keeper"))
	assert.Equal(t, "overtime:ratelimit:0x1", rateLimitKey("0x1"))
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("overtime.*"))
	assert.False(t, hasPattern("overtime.events"))
}
