package llm

import "context"

// MockClient is a test double for the LLM Client interface.
// Responses and Errs are consumed in order; when the script runs out the
// last entry repeats. Calls records every prompt sent.
type MockClient struct {
	Responses []*Response
	Errs      []error
	Calls     []string
}

// MockReply builds a MockClient that always returns the given content.
func MockReply(content string) *MockClient {
	return &MockClient{Responses: []*Response{{Content: content, Provider: "mock"}}}
}

// Complete records the call and returns the next scripted response.
func (m *MockClient) Complete(ctx context.Context, prompt string) (*Response, error) {
	i := len(m.Calls)
	m.Calls = append(m.Calls, prompt)

	var err error
	if len(m.Errs) > 0 {
		if i < len(m.Errs) {
			err = m.Errs[i]
		} else {
			err = m.Errs[len(m.Errs)-1]
		}
	}
	if err != nil {
		return nil, err
	}

	if len(m.Responses) == 0 {
		return &Response{Provider: "mock"}, nil
	}
	if i < len(m.Responses) {
		return m.Responses[i], nil
	}
	return m.Responses[len(m.Responses)-1], nil
}
