package utils

import (
	"context"
	"testing"
	"time"

	"insidertrack/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestDateOnly(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	in := time.Date(2024, 1, 15, 22, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), DateOnly(in))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 17, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 2, DaysBetween(a, b))
	assert.Equal(t, -2, DaysBetween(b, a))
}

func TestCleanToValidUTF8(t *testing.T) {
	assert.Equal(t, "Tim Cook", CleanToValidUTF8("  Tim \n\t Cook\xff "))
}

func TestShouldContinue(t *testing.T) {
	log := logger.NewNop()
	ctx, cancel := context.WithCancel(context.Background())
	assert.True(t, ShouldContinue(ctx, log))
	cancel()
	assert.False(t, ShouldContinue(ctx, log))
}

func TestContainsString(t *testing.T) {
	assert.True(t, ContainsString([]string{"SEC", "finviz"}, "sec"))
	assert.False(t, ContainsString(nil, "sec"))
}
