package provider

import (
	"fmt"
	"sync"

	"github.com/cuemby/corescale/pkg/types"
	"github.com/google/uuid"
)

// FakeProvider is an in-memory CloudProvider for tests and the CLI's
// local smoke-test mode, mirroring test_node_provider.py's
// MockProvider: Launch/Terminate apply synchronously against an
// in-memory node set, and ErrorOnCreate/ErrorOnTerminate let a test
// inject the failure paths SyncFrom reconciles.
type FakeProvider struct {
	mu sync.Mutex

	nodes map[string]types.CloudInstance
	errs  []types.ProviderError

	// ErrorOnCreate, if set, causes every subsequent Launch to fail
	// with a LaunchNodeError instead of creating a node.
	ErrorOnCreate error
	// ErrorOnTerminate, if set, causes every subsequent Terminate to
	// fail with a TerminateNodeError instead of removing the node.
	ErrorOnTerminate error
}

// NewFakeProvider returns an empty FakeProvider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{nodes: map[string]types.CloudInstance{}}
}

func (p *FakeProvider) Launch(nodeType string, count int, requestID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < count; i++ {
		if p.ErrorOnCreate != nil {
			p.errs = append(p.errs, types.LaunchNodeError{
				RequestID: requestID,
				NodeType:  nodeType,
				Details:   p.ErrorOnCreate.Error(),
			})
			continue
		}
		id := uuid.New().String()
		p.nodes[id] = types.CloudInstance{
			CloudInstanceID: id,
			NodeType:        nodeType,
			LaunchRequestID: requestID,
		}
	}
	return nil
}

func (p *FakeProvider) Terminate(cloudInstanceIDs []string, requestID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range cloudInstanceIDs {
		if p.ErrorOnTerminate != nil {
			p.errs = append(p.errs, types.TerminateNodeError{
				CloudInstanceID: id,
				RequestID:       requestID,
				Details:         p.ErrorOnTerminate.Error(),
			})
			continue
		}
		if _, ok := p.nodes[id]; !ok {
			return fmt.Errorf("fake provider: unknown cloud instance %s", id)
		}
		delete(p.nodes, id)
	}
	return nil
}

func (p *FakeProvider) NonTerminated() (map[string]types.CloudInstance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]types.CloudInstance, len(p.nodes))
	for k, v := range p.nodes {
		out[k] = v
	}
	return out, nil
}

func (p *FakeProvider) PollErrors() ([]types.ProviderError, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.errs
	p.errs = nil
	return out, nil
}
