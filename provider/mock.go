package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZaguanLabs/phrasebook"
)

// MockProvider is a scriptable provider for tests and examples.
type MockProvider struct {
	descriptor phrasebook.ProviderDescriptor

	mu           sync.Mutex
	translations map[string]string
	script       []error
	failure      error
	delay        time.Duration
	calls        int
	lastText     string
}

// NewMockProvider creates a mock that answers from translations. Unknown
// texts come back bracketed ("[text]").
func NewMockProvider(desc phrasebook.ProviderDescriptor, translations map[string]string) *MockProvider {
	if translations == nil {
		translations = make(map[string]string)
	}
	return &MockProvider{descriptor: desc, translations: translations}
}

// Descriptor implements phrasebook.Provider.
func (m *MockProvider) Descriptor() phrasebook.ProviderDescriptor {
	return m.descriptor
}

// Translate returns the scripted result for this call.
func (m *MockProvider) Translate(ctx context.Context, text, _, _ string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.lastText = text
	var err error
	if len(m.script) > 0 {
		err, m.script = m.script[0], m.script[1:]
	} else {
		err = m.failure
	}
	translated, ok := m.translations[text]
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	if err != nil {
		return "", err
	}
	if !ok {
		translated = fmt.Sprintf("[%s]", text)
	}
	return translated, nil
}

// FailWith makes every call fail with kind until cleared with Succeed.
func (m *MockProvider) FailWith(kind phrasebook.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = phrasebook.NewProviderError(m.descriptor.ID, kind, "scripted failure", nil)
}

// Succeed clears a failure set by FailWith.
func (m *MockProvider) Succeed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = nil
}

// Script queues per-call errors consumed in order. A nil entry means that
// call succeeds.
func (m *MockProvider) Script(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, errs...)
}

// SetDelay makes each call wait d (or until ctx is done) before answering.
func (m *MockProvider) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetTranslation adds or replaces a canned translation.
func (m *MockProvider) SetTranslation(text, translated string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.translations[text] = translated
}

// CallCount returns the number of Translate calls.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastText returns the text passed to the most recent call.
func (m *MockProvider) LastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastText
}

// Reset clears the call count, script and failure.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.lastText = ""
	m.script = nil
	m.failure = nil
}

// Verify MockProvider implements phrasebook.Provider
var _ phrasebook.Provider = (*MockProvider)(nil)
