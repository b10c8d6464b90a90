package archive

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// MockArchiveBackend implements interfaces.ArchiveBackend for testing.
type MockArchiveBackend struct {
	mock.Mock
	name string
}

func (m *MockArchiveBackend) Fetch(ctx context.Context, id interfaces.SnapshotID) ([]byte, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockArchiveBackend) Store(ctx context.Context, data []byte) (interfaces.SnapshotID, error) {
	args := m.Called(ctx, data)
	return args.Get(0).(interfaces.SnapshotID), args.Error(1)
}

func (m *MockArchiveBackend) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockArchiveBackend) Name() string {
	return m.name
}

func (m *MockArchiveBackend) LocationURI() string {
	return "mock:" + m.name
}

func TestMultiBackendAvailable(t *testing.T) {
	tests := []struct {
		name     string
		backends []bool
		expected bool
	}{
		{
			name:     "all backends available",
			backends: []bool{true, true, true},
			expected: true,
		},
		{
			name:     "some backends available",
			backends: []bool{false, true, false},
			expected: true,
		},
		{
			name:     "no backends available",
			backends: []bool{false, false, false},
			expected: false,
		},
		{
			name:     "no backends",
			backends: []bool{},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var backends []interfaces.ArchiveBackend
			for i, available := range tt.backends {
				mockBackend := &MockArchiveBackend{name: fmt.Sprintf("mock-%d", i)}
				mockBackend.On("Available", mock.Anything).Return(available).Maybe()
				backends = append(backends, mockBackend)
			}

			multi := NewMultiBackend(backends, discardLogger())

			assert.Equal(t, tt.expected, multi.Available(context.Background()))

			for _, backend := range backends {
				backend.(*MockArchiveBackend).AssertExpectations(t)
			}
		})
	}
}

func TestMultiBackendFetch(t *testing.T) {
	testID := interfaces.ComputeSnapshotID([]byte("archived snapshot"))
	testData := []byte("archived snapshot")
	testErr := errors.New("backend exploded")

	tests := []struct {
		name          string
		setupMocks    func() []interfaces.ArchiveBackend
		expectedData  []byte
		expectedError error
	}{
		{
			name: "first backend successful",
			setupMocks: func() []interfaces.ArchiveBackend {
				mock1 := &MockArchiveBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything, testID).Return(testData, nil)

				// Second backend should never be consulted.
				mock2 := &MockArchiveBackend{name: "mock-B"}

				return []interfaces.ArchiveBackend{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "first backend fails, second succeeds",
			setupMocks: func() []interfaces.ArchiveBackend {
				mock1 := &MockArchiveBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything, testID).Return(nil, testErr)

				mock2 := &MockArchiveBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything, testID).Return(testData, nil)

				return []interfaces.ArchiveBackend{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "unavailable backends are skipped",
			setupMocks: func() []interfaces.ArchiveBackend {
				mock1 := &MockArchiveBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockArchiveBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything, testID).Return(testData, nil)

				return []interfaces.ArchiveBackend{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "all backends miss",
			setupMocks: func() []interfaces.ArchiveBackend {
				mock1 := &MockArchiveBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything, testID).Return(nil, interfaces.ErrSnapshotNotFound)

				mock2 := &MockArchiveBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything, testID).Return(nil, interfaces.ErrSnapshotNotFound)

				return []interfaces.ArchiveBackend{mock1, mock2}
			},
			expectedError: interfaces.ErrSnapshotNotFound,
		},
		{
			name: "no backend reachable",
			setupMocks: func() []interfaces.ArchiveBackend {
				mock1 := &MockArchiveBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockArchiveBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(false)

				return []interfaces.ArchiveBackend{mock1, mock2}
			},
			expectedError: interfaces.ErrBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends := tt.setupMocks()
			multi := NewMultiBackend(backends, discardLogger())

			data, err := multi.Fetch(context.Background(), testID)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedData, data)

			for _, backend := range backends {
				backend.(*MockArchiveBackend).AssertExpectations(t)
			}
		})
	}
}

func TestMultiBackendFetchAllFail(t *testing.T) {
	testID := interfaces.ComputeSnapshotID([]byte("unreachable"))
	testErr := errors.New("backend exploded")

	mock1 := &MockArchiveBackend{name: "mock-A"}
	mock1.On("Available", mock.Anything).Return(true)
	mock1.On("Fetch", mock.Anything, testID).Return(nil, testErr)

	mock2 := &MockArchiveBackend{name: "mock-B"}
	mock2.On("Available", mock.Anything).Return(true)
	mock2.On("Fetch", mock.Anything, testID).Return(nil, testErr)

	multi := NewMultiBackend([]interfaces.ArchiveBackend{mock1, mock2}, discardLogger())

	_, err := multi.Fetch(context.Background(), testID)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrSnapshotNotFound,
		"hard backend failures must not masquerade as a miss")

	mock1.AssertExpectations(t)
	mock2.AssertExpectations(t)
}

func TestMultiBackendStore(t *testing.T) {
	testData := []byte("snapshot to fan out")
	testID := interfaces.ComputeSnapshotID(testData)
	testErr := errors.New("backend exploded")

	tests := []struct {
		name          string
		setupMocks    func() []interfaces.ArchiveBackend
		expectedID    interfaces.SnapshotID
		expectedError bool
	}{
		{
			name: "all backends successful",
			setupMocks: func() []interfaces.ArchiveBackend {
				mock1 := &MockArchiveBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Store", mock.Anything, testData).Return(testID, nil)

				mock2 := &MockArchiveBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Store", mock.Anything, testData).Return(testID, nil)

				return []interfaces.ArchiveBackend{mock1, mock2}
			},
			expectedID: testID,
		},
		{
			name: "some backends fail",
			setupMocks: func() []interfaces.ArchiveBackend {
				mock1 := &MockArchiveBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Store", mock.Anything, testData).Return(testID, nil)

				mock2 := &MockArchiveBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Store", mock.Anything, testData).Return(interfaces.SnapshotID{}, testErr)

				return []interfaces.ArchiveBackend{mock1, mock2}
			},
			expectedID: testID,
		},
		{
			name: "all backends fail",
			setupMocks: func() []interfaces.ArchiveBackend {
				mock1 := &MockArchiveBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Store", mock.Anything, testData).Return(interfaces.SnapshotID{}, testErr)

				mock2 := &MockArchiveBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Store", mock.Anything, testData).Return(interfaces.SnapshotID{}, testErr)

				return []interfaces.ArchiveBackend{mock1, mock2}
			},
			expectedID:    interfaces.SnapshotID{},
			expectedError: true,
		},
		{
			name: "unavailable backends are skipped",
			setupMocks: func() []interfaces.ArchiveBackend {
				mock1 := &MockArchiveBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockArchiveBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Store", mock.Anything, testData).Return(testID, nil)

				return []interfaces.ArchiveBackend{mock1, mock2}
			},
			expectedID: testID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends := tt.setupMocks()
			multi := NewMultiBackend(backends, discardLogger())

			id, err := multi.Store(context.Background(), testData)

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedID, id)

			for _, backend := range backends {
				backend.(*MockArchiveBackend).AssertExpectations(t)
			}
		})
	}
}

func TestMultiBackendLocationURI(t *testing.T) {
	mock1 := &MockArchiveBackend{name: "mock-A"}
	mock2 := &MockArchiveBackend{name: "mock-B"}

	multi := NewMultiBackend([]interfaces.ArchiveBackend{mock1, mock2}, discardLogger())

	assert.Equal(t, "multi-archive", multi.Name())
	assert.Equal(t, "multi:[mock:mock-A,mock:mock-B]", multi.LocationURI())
}
