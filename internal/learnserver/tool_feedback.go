package learnserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/toolutil"
)

// FeedbackSubmitInput is the input of feedback_submit.
type FeedbackSubmitInput struct {
	VideoID           string `json:"video_id" jsonschema:"External ID of the rated video"`
	UserRating        int    `json:"user_rating" jsonschema:"Overall rating 1-5"`
	QualityRating     int    `json:"quality_rating,omitempty" jsonschema:"Optional 1-5"`
	HelpfulnessRating int    `json:"helpfulness_rating,omitempty" jsonschema:"Optional 1-5"`
	AccuracyRating    int    `json:"accuracy_rating,omitempty" jsonschema:"Optional 1-5"`
	ClarityRating     int    `json:"clarity_rating,omitempty" jsonschema:"Optional 1-5"`
	Comment           string `json:"comment,omitempty"`
	FeedbackType      string `json:"feedback_type,omitempty" jsonschema:"Free-form category (default: general)"`
	SessionID         string `json:"session_id,omitempty"`
}

// Feedback converts the input into a feedback record.
func (in FeedbackSubmitInput) Feedback() engine.Feedback {
	return engine.Feedback{
		VideoID:           in.VideoID,
		UserRating:        in.UserRating,
		QualityRating:     in.QualityRating,
		HelpfulnessRating: in.HelpfulnessRating,
		AccuracyRating:    in.AccuracyRating,
		ClarityRating:     in.ClarityRating,
		Comment:           in.Comment,
		FeedbackType:      in.FeedbackType,
		SessionID:         in.SessionID,
	}
}

// FeedbackListInput is the input of feedback_list.
type FeedbackListInput struct {
	VideoID string `json:"video_id" jsonschema:"External ID of the video"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum entries (default: 50, max: 500)"`
}

// FeedbackListOutput wraps a video's feedback.
type FeedbackListOutput struct {
	VideoID  string            `json:"video_id"`
	Feedback []engine.Feedback `json:"feedback"`
}

func registerFeedbackTools(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "feedback_submit",
		Description: "Rate a catalog video. Ratings are 1-5; the video's average rating and rating count are updated.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input FeedbackSubmitInput) (*mcp.CallToolResult, *engine.Feedback, error) {
		f, err := d.DB.SubmitFeedback(ctx, input.Feedback())
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &f, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "feedback_list",
		Description: "List feedback for a video, newest first.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input FeedbackListInput) (*mcp.CallToolResult, *FeedbackListOutput, error) {
		if input.VideoID == "" {
			return nil, nil, errors.New("video_id is required")
		}
		list, err := d.DB.ListFeedback(ctx, input.VideoID, toolutil.Limit(input.Limit, 50, 500))
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &FeedbackListOutput{VideoID: input.VideoID, Feedback: list}, nil
	})
}
