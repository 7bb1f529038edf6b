package tokenizer

import (
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/types"
)

// Tokenizer 是统一的 Token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Counter 将 Tokenizer 适配为 types.TokenCounter：主分词器出错后永久切换到估算器。
type Counter struct {
	primary  Tokenizer
	fallback Tokenizer
	logger   *zap.Logger

	mu       sync.Mutex
	degraded bool
}

// NewCounter 组合主分词器与估算器。
func NewCounter(primary Tokenizer, logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxTokens := 0
	if primary != nil {
		maxTokens = primary.MaxTokens()
	}
	return &Counter{
		primary:  primary,
		fallback: NewEstimatorTokenizer(maxTokens),
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
}

// ForModel 返回给定部署/模型的计数器。
func ForModel(model string, logger *zap.Logger) *Counter {
	return NewCounter(NewTiktokenTokenizer(model), logger)
}

// CountTokens 实现 types.TokenCounter。
func (c *Counter) CountTokens(text string) int {
	c.mu.Lock()
	degraded := c.degraded || c.primary == nil
	c.mu.Unlock()

	if !degraded {
		n, err := c.primary.CountTokens(text)
		if err == nil {
			return n
		}
		c.mu.Lock()
		if !c.degraded {
			c.degraded = true
			c.logger.Warn("tokenizer unavailable, falling back to estimator",
				zap.String("tokenizer", c.primary.Name()), zap.Error(err))
		}
		c.mu.Unlock()
	}
	n, _ := c.fallback.CountTokens(text)
	return n
}

// CountMessages 统计消息列表的 Token 数，每条消息计 4 个开销，会话结尾计 3 个。
func (c *Counter) CountMessages(msgs []types.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	total := 3
	for _, m := range msgs {
		total += 4 + c.CountTokens(m.Content) + c.CountTokens(m.Author)
	}
	return total
}

// Degraded 返回是否已回退到估算器。
func (c *Counter) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded || c.primary == nil
}

var _ types.TokenCounter = (*Counter)(nil)
