package azureopenai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/agentcrew/llm"
)

// StreamSSE parses an OpenAI-style SSE stream into StreamChunks.
// The caller must have checked the response status.
func StreamSSE(ctx context.Context, body io.ReadCloser, provider string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)

		emitErr := func(msg string) {
			select {
			case <-ctx.Done():
			case ch <- llm.StreamChunk{Err: &llm.Error{
				Code: llm.ErrUpstreamError, Message: msg,
				HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: provider,
			}}:
			}
		}

		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					emitErr(err.Error())
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var frame chatResponse
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				emitErr(err.Error())
				return
			}

			// Azure 首帧只携带 prompt_filter_results，没有 choices
			for _, choice := range frame.Choices {
				chunk := llm.StreamChunk{
					ID:           frame.ID,
					Provider:     provider,
					Model:        frame.Model,
					Index:        choice.Index,
					FinishReason: choice.FinishReason,
					Delta:        llm.Message{Role: llm.RoleAssistant},
				}
				if choice.Delta != nil {
					chunk.Delta.Content = choice.Delta.Content
					chunk.Delta.ToolCalls = fromWireToolCalls(choice.Delta.ToolCalls)
				}
				if frame.Usage != nil {
					usage := frame.Usage.toLLM()
					chunk.Usage = &usage
				}
				select {
				case <-ctx.Done():
					return
				case ch <- chunk:
				}
			}
		}
	}()
	return ch
}
