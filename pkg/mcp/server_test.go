package mcp

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"pwguess/internal/config"
	"pwguess/internal/service"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSession(t *testing.T, train, simulate bool) *mcp.ClientSession {
	t.Helper()
	cfg := config.Default()
	cfg.App.WorkDir = t.TempDir()
	cfg.Model.MaxGram = 3
	cfg.Model.Threshold = 1
	cfg.Sampling.Size = 1000
	cfg.Sampling.Seed = 3
	svc, err := service.NewSimulatorService(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	if train {
		corpus := strings.Repeat("dragon\n", 5) + strings.Repeat("monkey\n", 3)
		m, err := svc.Train(ctx, []io.Reader{strings.NewReader(corpus)}, nil)
		require.NoError(t, err)
		svc.Install(m)
	}
	if simulate {
		_, err := svc.Simulate(ctx, nil)
		require.NoError(t, err)
	}

	s := NewGuessServer(svc, cfg, zap.NewNop())
	ts := httptest.NewServer(s.handler)
	t.Cleanup(ts.Close)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: ts.URL}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func callText(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "unexpected content %T", res.Content[0])
	return text.Text
}

func TestScorePasswordWithoutModel(t *testing.T) {
	session := testSession(t, false, false)
	text := callText(t, session, "scorePassword", map[string]any{"password": "dragon"})
	assert.Contains(t, text, "Failed to score password")
}

func TestScorePasswordBeforeSimulation(t *testing.T) {
	session := testSession(t, true, false)
	text := callText(t, session, "scorePassword", map[string]any{"password": "dragon"})
	assert.Contains(t, text, "tokens: d | r | a | g | o | n\n")
	assert.Contains(t, text, "guess number: unavailable")
}

func TestScorePasswordAfterSimulation(t *testing.T) {
	session := testSession(t, true, true)
	text := callText(t, session, "scorePassword", map[string]any{"password": "dragon"})
	assert.Contains(t, text, "guess number: ")
	assert.NotContains(t, text, "unavailable")
	assert.NotContains(t, text, "beyond sampled range")

	text = callText(t, session, "scorePassword", map[string]any{"password": "qqqq"})
	assert.Contains(t, text, "guess number: beyond sampled range (above)")
}

func TestEstimateGuessNumberOrdersPasswords(t *testing.T) {
	session := testSession(t, true, true)
	text := callText(t, session, "estimateGuessNumber", map[string]any{"passwords": []string{"qqqq", "dragon"}})

	assert.True(t, strings.HasPrefix(text, "Guess numbers for 2 passwords:\n"), text)
	dragon := strings.Index(text, "- dragon: ")
	qqqq := strings.Index(text, "- qqqq: beyond sampled range")
	require.NotEqual(t, -1, dragon, text)
	require.NotEqual(t, -1, qqqq, text)
	assert.Less(t, dragon, qqqq)
}

func TestEstimateGuessNumberRejectsBadInput(t *testing.T) {
	session := testSession(t, true, true)

	text := callText(t, session, "estimateGuessNumber", map[string]any{"passwords": []string{}})
	assert.Equal(t, "No passwords given.", text)

	many := make([]string, MaxToolPasswords+1)
	for i := range many {
		many[i] = fmt.Sprintf("pwd%d", i)
	}
	text = callText(t, session, "estimateGuessNumber", map[string]any{"passwords": many})
	assert.Equal(t, fmt.Sprintf("Too many passwords: %d, at most %d", MaxToolPasswords+1, MaxToolPasswords), text)
}
