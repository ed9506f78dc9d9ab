package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (n namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	r := NewRegistry(namedJob("offer-expiry"), nil, namedJob("auto-cancel"))
	require.Equal(t, 2, r.Len())

	jobs := r.Jobs()
	assert.Equal(t, "offer-expiry", jobs[0].Name())
	assert.Equal(t, "auto-cancel", jobs[1].Name())

	jobs[0] = nil
	assert.NotNil(t, r.Jobs()[0])
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry(namedJob("incentive-batch"))
	assert.Error(t, r.Register(namedJob("incentive-batch")))
	assert.Equal(t, 1, r.Len())

	assert.Panics(t, func() { NewRegistry(namedJob("a"), namedJob("a")) })
}
