// Package openai adapts the OpenAI Responses API to the reasoning-service
// port: synchronous generation for clarify/rewrite and background jobs with
// web-search and code-execution tools for the research phase.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"golang.org/x/time/rate"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
	"github.com/dmakhnev/deep-research-core/internal/infrastructure/resilience"
)

type Config struct {
	APIKey            string
	Model             string
	ResearchModel     string
	RequestsPerMinute int
}

type Client struct {
	api           openai.Client
	model         string
	researchModel string
	limiter       *rate.Limiter
	executor      *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	return &Client{
		api:           openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:         cfg.Model,
		researchModel: cfg.ResearchModel,
		limiter:       rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		executor:      executor,
	}
}

func (c *Client) Clarify(ctx context.Context, req domain.ClarifyRequest) (string, error) {
	params := responses.ResponseNewParams{
		Model:        c.model,
		Instructions: openai.String(clarifySystemPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(buildClarifyInput(req), responses.EasyInputMessageRoleUser),
			},
		},
	}

	resp, err := c.create(ctx, "openai.clarify", params)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.OutputText()), nil
}

type rewriteResponse struct {
	RewrittenPrompt string `json:"rewritten_prompt" jsonschema_description:"The rewritten, self-contained research prompt"`
}

var rewriteSchema = generateSchema[rewriteResponse]()

func (c *Client) Rewrite(ctx context.Context, req domain.RewriteRequest) (string, error) {
	params := responses.ResponseNewParams{
		Model:        c.model,
		Instructions: openai.String(rewriteSystemPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(buildRewriteInput(req), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   "RewrittenPrompt",
					Schema: rewriteSchema,
					Strict: openai.Bool(true),
					Type:   "json_schema",
				},
			},
		},
	}

	resp, err := c.create(ctx, "openai.rewrite", params)
	if err != nil {
		return "", err
	}

	var out rewriteResponse
	if err := json.Unmarshal([]byte(extractJSONObject(resp.OutputText())), &out); err != nil {
		return "", fmt.Errorf("parse rewrite json: %w", err)
	}
	rewritten := strings.TrimSpace(out.RewrittenPrompt)
	if rewritten == "" {
		return "", fmt.Errorf("rewrite produced empty prompt")
	}
	return rewritten, nil
}

// ResearchTools names the tool capabilities requested for background
// research jobs, recorded in the audit trail.
var ResearchTools = []string{"web_search_preview", "code_interpreter"}

func (c *Client) LaunchResearch(ctx context.Context, req domain.ResearchRequest) (string, error) {
	params := responses.ResponseNewParams{
		Model:        c.researchModel,
		Background:   openai.Bool(true),
		Instructions: openai.String(researchSystemPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(buildResearchInput(req), responses.EasyInputMessageRoleUser),
			},
		},
		Tools: []responses.ToolUnionParam{
			{
				OfWebSearchPreview: &responses.WebSearchToolParam{
					Type: responses.WebSearchToolTypeWebSearchPreview,
				},
			},
			{
				OfCodeInterpreter: &responses.ToolCodeInterpreterParam{
					Container: responses.ToolCodeInterpreterContainerUnionParam{
						OfCodeInterpreterContainerAuto: &responses.ToolCodeInterpreterContainerCodeInterpreterContainerAutoParam{},
					},
				},
			},
		},
	}

	resp, err := c.create(ctx, "openai.research_launch", params)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("background launch returned no job id")
	}
	return resp.ID, nil
}

func (c *Client) PollResearch(ctx context.Context, jobID string) (*domain.BackgroundResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp *responses.Response
	err := c.executor.Execute(ctx, "openai.research_poll", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.api.Responses.Get(callCtx, jobID, responses.ResponseGetParams{})
		return callErr
	}, classifyOpenAIError)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExternal, "poll background job", err)
	}

	switch resp.Status {
	case responses.ResponseStatusCompleted:
		return &domain.BackgroundResult{
			State:     domain.JobCompleted,
			Output:    resp.OutputText(),
			Citations: collectCitations(resp),
		}, nil
	case responses.ResponseStatusFailed, responses.ResponseStatusCancelled, responses.ResponseStatusIncomplete:
		message := string(resp.Status)
		if resp.Error.Message != "" {
			message = resp.Error.Message
		}
		return &domain.BackgroundResult{State: domain.JobFailed, Error: message}, nil
	default:
		return &domain.BackgroundResult{State: domain.JobRunning}, nil
	}
}

func (c *Client) create(ctx context.Context, operation string, params responses.ResponseNewParams) (*responses.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp *responses.Response
	err := c.executor.Execute(ctx, operation, func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.api.Responses.New(callCtx, params)
		return callErr
	}, classifyOpenAIError)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExternal, operation, err)
	}
	return resp, nil
}

func collectCitations(resp *responses.Response) []domain.Citation {
	var citations []domain.Citation
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.AsMessage().Content {
			if part.Type != "output_text" {
				continue
			}
			for _, ann := range part.AsOutputText().Annotations {
				if ann.Type != "url_citation" {
					continue
				}
				citations = append(citations, domain.Citation{
					Title:      ann.Title,
					URL:        ann.URL,
					StartIndex: int(ann.StartIndex),
					EndIndex:   int(ann.EndIndex),
				})
			}
		}
	}
	return citations
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
