package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
	"github.com/ahrav/go-maestro/internal/testutils"
)

const testRoster = `
orchestrator:
  name: super_agent
  description: 질문을 전문가에게 배분하는 총괄 비서
  prompt: ROLE:orchestrator 당신은 마스터 AI 비서입니다.
specialists:
  - name: search_agent
    description: |
      웹 검색 전문가.
      최신 기술 뉴스도 찾습니다.
    prompt: ROLE:search
    tools: [general_search, tech_news_search]
  - name: mail_agent
    description: 메일 전문가
    prompt: ROLE:mail
    model: anthropic/claude-3-5-haiku-latest
    round_limit: 4
    tools: [draft_mail]
`

func TestParseRoster(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "valid", yaml: testRoster},
		{
			name:    "unknown field",
			yaml:    strings.Replace(testRoster, "    tools: [draft_mail]", "    tools: [draft_mail]\n    temperature: 0.2", 1),
			wantErr: "field temperature not found",
		},
		{
			name: "no specialists",
			yaml: `
orchestrator: {name: super_agent, description: d, prompt: p}
specialists: []
`,
			wantErr: "Specialists",
		},
		{
			name:    "bad agent name",
			yaml:    strings.Replace(testRoster, "name: mail_agent", "name: mail agent", 1),
			wantErr: "identifier",
		},
		{
			name:    "bad model override",
			yaml:    strings.Replace(testRoster, "anthropic/claude-3-5-haiku-latest", "claude", 1),
			wantErr: "modelformat",
		},
		{
			name:    "round limit too high",
			yaml:    strings.Replace(testRoster, "round_limit: 4", "round_limit: 21", 1),
			wantErr: "RoundLimit",
		},
		{
			name:    "duplicate names",
			yaml:    strings.Replace(testRoster, "name: mail_agent", "name: search_agent", 1),
			wantErr: `duplicate agent name "search_agent"`,
		},
		{
			name:    "specialist without tools",
			yaml:    strings.Replace(testRoster, "    tools: [draft_mail]\n", "", 1),
			wantErr: "specialist mail_agent has no tools",
		},
		{
			name:    "orchestrator with tools",
			yaml:    strings.Replace(testRoster, "  prompt: ROLE:orchestrator", "  tools: [general_search]\n  prompt: ROLE:orchestrator", 1),
			wantErr: "must not list tools",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roster, err := ParseRoster(strings.NewReader(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "super_agent", roster.Orchestrator.Name)
			require.Len(t, roster.Specialists, 2)
			assert.Equal(t, []string{"general_search", "tech_news_search"}, roster.Specialists[0].Tools)
			assert.Equal(t, 4, roster.Specialists[1].RoundLimit)
		})
	}
}

func TestParseRoster_SemanticErrorsAreValidationErrors(t *testing.T) {
	_, err := ParseRoster(strings.NewReader(strings.Replace(testRoster, "name: mail_agent", "name: super_agent", 1)))

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Roster", verr.Entity)
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRoster), 0o600))

	roster, err := LoadRoster(path)
	require.NoError(t, err)
	assert.Len(t, roster.Specialists, 2)

	_, err = LoadRoster(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRoster_Shipped(t *testing.T) {
	roster, err := LoadRoster(filepath.Join("..", "..", "testdata", "roster.yaml"))
	require.NoError(t, err)

	names := make([]string, 0, len(roster.Specialists))
	for _, s := range roster.Specialists {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{
		"search_agent", "stock_agent", "mail_agent", "calendar_agent",
		"place_agent", "weather_agent", "document_agent", "shopping_agent",
	}, names)
}

func TestRoster_ModelSpecs(t *testing.T) {
	roster, err := ParseRoster(strings.NewReader(testRoster))
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"openai/gpt-4.1-mini", "anthropic/claude-3-5-haiku-latest"},
		roster.ModelSpecs("openai/gpt-4.1-mini"))
	assert.Equal(t, []string{"anthropic/claude-3-5-haiku-latest"}, roster.ModelSpecs(""))
}

// resolverFor returns a ModelResolver that hands out model for every spec
// and records the specs it was asked for.
func resolverFor(model ports.ChatModel, seen *[]string) ModelResolver {
	return func(spec string) (ports.ChatModel, error) {
		*seen = append(*seen, spec)
		return model, nil
	}
}

// countingAgent counts turns passing through a wrapper.
type countingAgent struct {
	ports.Agent
	runs *atomic.Int32
}

func (c countingAgent) Run(ctx context.Context, req ports.AgentRequest) (*domain.TurnResult, error) {
	c.runs.Add(1)
	return c.Agent.Run(ctx, req)
}

func TestBuildOrchestrator(t *testing.T) {
	roster, err := ParseRoster(strings.NewReader(testRoster))
	require.NoError(t, err)

	var searchCalls, newsCalls, draftCalls atomic.Int32
	available := newRegistry(t,
		echoTool("general_search", &searchCalls),
		echoTool("tech_news_search", &newsCalls),
		draftTool(&draftCalls),
	)

	t.Run("wires specialists and wraps every agent", func(t *testing.T) {
		// Given a scripted model behind every agent
		model := testutils.NewMockChatModel("mock").
			On("ROLE:orchestrator",
				testutils.Call("search_agent", `{"instruction":"AI 뉴스"}`),
				testutils.Text("정리했습니다."),
			).
			On("ROLE:search",
				testutils.Call("tech_news_search", `{"query":"AI"}`),
				testutils.Text("뉴스 요약"),
			)
		var specs []string
		var runs atomic.Int32

		// When the tree is built and asked a question
		agent, err := BuildOrchestrator(roster, available, resolverFor(model, &specs), BuildOptions{
			DefaultModel: "openai/gpt-4.1-mini",
			RoundLimit:   5,
			Wrap:         func(a ports.Agent) ports.Agent { return countingAgent{Agent: a, runs: &runs} },
		})
		require.NoError(t, err)
		assert.Equal(t, "super_agent", agent.Name())

		result, err := agent.Run(context.Background(), ports.AgentRequest{Input: "AI 뉴스 알려줘", Today: today})

		// Then the orchestrator delegated and both agents passed through the wrapper
		require.NoError(t, err)
		assert.Equal(t, "[search_agent.tech_news_search]", result.Trace.String())
		assert.Equal(t, int32(2), runs.Load())
		assert.Equal(t, []string{
			"openai/gpt-4.1-mini",
			"anthropic/claude-3-5-haiku-latest",
			"openai/gpt-4.1-mini",
		}, specs)

		orchestratorReq := model.Requests()[0]
		assert.Contains(t, orchestratorReq.System, "사용 가능한 전문가 목록은 다음과 같습니다:")
		assert.Contains(t, orchestratorReq.System, "- search_agent: 웹 검색 전문가. 최신 기술 뉴스도 찾습니다.")
		assert.Contains(t, orchestratorReq.System, "- mail_agent: 메일 전문가")
		require.Len(t, orchestratorReq.Tools, 2)
		assert.Equal(t, "search_agent", orchestratorReq.Tools[0].Name)
		assert.Equal(t, "mail_agent", orchestratorReq.Tools[1].Name)

		searchReq := model.Requests()[1]
		require.Len(t, searchReq.Tools, 2, "specialists only see their own tools")
		assert.Equal(t, "general_search", searchReq.Tools[0].Name)
		assert.Equal(t, "tech_news_search", searchReq.Tools[1].Name)
	})

	t.Run("skips specialists with unavailable tools", func(t *testing.T) {
		model := testutils.NewMockChatModel("mock").On("ROLE:orchestrator", testutils.Text("ok"))
		var specs []string
		partial := newRegistry(t, draftTool(&draftCalls))

		agent, err := BuildOrchestrator(roster, partial, resolverFor(model, &specs), BuildOptions{DefaultModel: "openai/gpt-4.1-mini"})
		require.NoError(t, err)

		_, err = agent.Run(context.Background(), ports.AgentRequest{Input: "hi"})
		require.NoError(t, err)

		req := model.Requests()[0]
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "mail_agent", req.Tools[0].Name)
		assert.NotContains(t, req.System, "search_agent")
	})

	t.Run("sampling settings with per-agent overrides", func(t *testing.T) {
		// Given a roster where the mail specialist sets its own temperature
		sampled, err := ParseRoster(strings.NewReader(`
orchestrator:
  name: super_agent
  description: 총괄 비서
  prompt: ROLE:orchestrator
specialists:
  - name: mail_agent
    description: 메일 전문가
    prompt: ROLE:mail
    temperature: 0.4
    max_tokens: 512
    tools: [draft_mail]
`))
		require.NoError(t, err)
		model := testutils.NewMockChatModel("mock").
			On("ROLE:orchestrator",
				testutils.Call("mail_agent", `{"instruction":"초안"}`),
				testutils.Text("완료"),
			).
			On("ROLE:mail", testutils.Text("작성 완료"))
		var specs []string
		zero := 0.0

		// When the tree is built with a pinned default temperature
		agent, err := BuildOrchestrator(sampled, available, resolverFor(model, &specs), BuildOptions{
			DefaultModel: "openai/gpt-4.1-mini",
			Temperature:  &zero,
			MaxTokens:    1024,
		})
		require.NoError(t, err)
		_, err = agent.Run(context.Background(), ports.AgentRequest{Input: "메일 초안"})
		require.NoError(t, err)

		// Then the orchestrator uses the defaults and the specialist its overrides
		reqs := model.Requests()
		require.Len(t, reqs, 3)
		require.NotNil(t, reqs[0].Temperature)
		assert.Zero(t, *reqs[0].Temperature)
		assert.Equal(t, 1024, reqs[0].MaxTokens)

		require.NotNil(t, reqs[1].Temperature)
		assert.InDelta(t, 0.4, *reqs[1].Temperature, 1e-9)
		assert.Equal(t, 512, reqs[1].MaxTokens)
	})

	t.Run("fails when no specialist remains", func(t *testing.T) {
		var specs []string
		_, err := BuildOrchestrator(roster, newRegistry(t), resolverFor(testutils.NewMockChatModel("mock"), &specs), BuildOptions{})
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("resolver errors name the agent", func(t *testing.T) {
		resolve := func(spec string) (ports.ChatModel, error) {
			return nil, ports.NewConfigError("OPENAI_API_KEY", ports.ErrMissingCredentials)
		}
		_, err := BuildOrchestrator(roster, available, resolve, BuildOptions{DefaultModel: "openai/gpt-4.1-mini"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent search_agent")
		assert.ErrorIs(t, err, ports.ErrMissingCredentials)
	})
}
