package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/codeready-toolchain/scout/pkg/models"
)

const maxBlockTextLength = 2900

var statusEmoji = map[models.RunStatus]string{
	models.RunStatusCompleted: ":white_check_mark:",
	models.RunStatusFailed:    ":x:",
	models.RunStatusCancelled: ":no_entry_sign:",
}

var statusLabel = map[models.RunStatus]string{
	models.RunStatusCompleted: "Research Complete",
	models.RunStatusFailed:    "Research Failed",
	models.RunStatusCancelled: "Research Cancelled",
}

func runURL(baseURL, runID string) string {
	return fmt.Sprintf("%s/api/v1/runs/%s", baseURL, runID)
}

// BuildRunMessage creates Block Kit blocks for a finished run notification.
func BuildRunMessage(run *models.Run, baseURL string) []goslack.Block {
	emoji := statusEmoji[run.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[run.Status]
	if label == "" {
		label = "Research " + string(run.Status)
	}

	header := fmt.Sprintf("%s *%s*\n_%s_", emoji, label, truncateForSlack(run.Input, 200))
	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	switch run.Status {
	case models.RunStatusCompleted:
		if run.FinalReport != "" {
			blocks = append(blocks, goslack.NewSectionBlock(
				goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(run.FinalReport, maxBlockTextLength), false, false),
				nil, nil,
			))
		}
	case models.RunStatusFailed:
		if run.Error != "" {
			text := fmt.Sprintf("*Error:*\n%s", truncateForSlack(run.Error, maxBlockTextLength))
			blocks = append(blocks, goslack.NewSectionBlock(
				goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
				nil, nil,
			))
		}
	}

	if baseURL != "" {
		btn := goslack.NewButtonBlockElement("", "",
			goslack.NewTextBlockObject(goslack.PlainTextType, "View Full Report", false, false))
		btn.URL = runURL(baseURL, run.ID)
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	return blocks
}

func truncateForSlack(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "\n\n_... (truncated)_"
}
