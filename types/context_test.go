package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextStringValues(t *testing.T) {
	cases := []struct {
		name string
		with func(context.Context, string) context.Context
		get  func(context.Context) (string, bool)
	}{
		{"trace", WithTraceID, TraceID},
		{"tenant", WithTenantID, TenantID},
		{"user", WithUserID, UserID},
		{"run", WithRunID, RunID},
		{"session", WithSessionID, SessionID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := tc.get(context.Background())
			assert.False(t, ok)

			got, ok := tc.get(tc.with(context.Background(), tc.name+"-1"))
			assert.True(t, ok)
			assert.Equal(t, tc.name+"-1", got)

			// 空字符串视为未设置
			_, ok = tc.get(tc.with(context.Background(), ""))
			assert.False(t, ok)
		})
	}
}

func TestContextKeysDoNotCollide(t *testing.T) {
	ctx := WithRunID(WithSessionID(context.Background(), "s"), "r")
	run, _ := RunID(ctx)
	session, _ := SessionID(ctx)
	assert.Equal(t, "r", run)
	assert.Equal(t, "s", session)
}

func TestRoles(t *testing.T) {
	_, ok := Roles(WithRoles(context.Background(), nil))
	assert.False(t, ok)

	roles, ok := Roles(WithRoles(context.Background(), []string{"admin", "reviewer"}))
	assert.True(t, ok)
	assert.Equal(t, []string{"admin", "reviewer"}, roles)
}
