package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ssotoa70/mediasearch/engine/domain"
)

func TestKindForPgErrClassifiesNotFoundSentinels(t *testing.T) {
	assert.Equal(t, domain.KindNotFound, kindForPgErr(domain.ErrAssetNotFound))
	assert.Equal(t, domain.KindNotFound, kindForPgErr(domain.ErrVersionNotFound))
	assert.Equal(t, domain.KindNotFound, kindForPgErr(domain.ErrDLQItemNotFound))
}

func TestKindForPgErrDefaultsToTransientResource(t *testing.T) {
	assert.Equal(t, domain.KindTransientResource, kindForPgErr(assert.AnError))
}

func TestWrapErrPreservesClassification(t *testing.T) {
	err := wrapErr("get asset", domain.ErrAssetNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}
