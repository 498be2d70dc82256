package s3store

import (
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, ".containers/acct", markerKey("acct"))
	assert.Equal(t, ".containers/.token_0", markerKey(".token_0"))
	assert.Equal(t, "acct/usr", objectKey("acct", "usr"))
	assert.Equal(t, ".account_id/AUTH_x", objectKey(".account_id", "AUTH_x"))
}

func TestErrorClassification(t *testing.T) {
	wrap := func(code string) error {
		return fmt.Errorf("op failed: %w", &smithy.GenericAPIError{Code: code, Message: code})
	}

	assert.True(t, isNotFound(wrap("NoSuchKey")))
	assert.True(t, isNotFound(wrap("NotFound")))
	assert.True(t, isNotFound(wrap("NoSuchBucket")))
	assert.False(t, isNotFound(wrap("AccessDenied")))
	assert.False(t, isNotFound(fmt.Errorf("plain failure")))

	assert.True(t, preconditionFailed(wrap("PreconditionFailed")))
	assert.False(t, preconditionFailed(wrap("NoSuchKey")))
}
