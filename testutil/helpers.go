// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertAuthors(t, []string{"BusinessAnalyst"}, result.Messages)
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertAuthors 断言消息作者序列
func AssertAuthors(t *testing.T, expected []string, msgs []types.Message) {
	t.Helper()
	actual := make([]string, len(msgs))
	for i, m := range msgs {
		actual[i] = m.Author
	}
	assert.Equal(t, expected, actual)
}

// AssertMessagesEqual 断言两个消息切片逐条相等
func AssertMessagesEqual(t *testing.T, expected, actual []types.Message) {
	t.Helper()
	if !assert.Len(t, actual, len(expected)) {
		return
	}
	for i := range expected {
		assert.Truef(t, expected[i].Equal(actual[i]), "message %d differs: %+v vs %+v", i, expected[i], actual[i])
	}
}

// =============================================================================
// 🌊 流式辅助
// =============================================================================

// CollectStreamContent 读取整个流并拼接增量内容
func CollectStreamContent(ch <-chan llm.StreamChunk) string {
	var out string
	for chunk := range ch {
		out += chunk.Delta.Content
	}
	return out
}
