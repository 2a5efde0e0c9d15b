package app

import "github.com/convomem/convomem/pkg/tools"

// registerTools binds every tool implementation to its collaborators and
// registers it into a.Registry, matching the tool surface spec.md §6 names.
func (a *App) registerTools() error {
	all := []tools.Tool{
		&tools.SaveMessageTool{Conversations: a.Conversations, Messages: a.Messages},
		&tools.GetConversationTool{Messages: a.Messages},
		&tools.GetConversationsTool{Conversations: a.Conversations},
		&tools.DeleteConversationTool{Conversations: a.Conversations},

		&tools.SearchMessagesTool{Engine: a.SearchEng},
		&tools.SemanticSearchTool{Engine: a.SearchEng},
		&tools.HybridSearchTool{Engine: a.SearchEng},

		&tools.GetContextSummaryTool{Summaries: a.Summaries, Messages: a.Messages, Summarizer: a.Summarizer},
		&tools.GetRelevantSnippetsTool{Assembler: a.Assembler},
		&tools.GetProgressiveDetailTool{Summaries: a.Summaries, Messages: a.Messages},

		&tools.GetEntityHistoryTool{Knowledge: a.Knowledge},
		&tools.FindRelatedConversationsTool{Knowledge: a.Knowledge},
		&tools.GetKnowledgeGraphTool{Knowledge: a.Knowledge},

		&tools.ConfigureLLMProviderTool{Providers: a.Providers},

		&tools.GetConversationAnalyticsTool{Analytics: a.Analytics, Messages: a.Messages, Entities: a.Entities},
		&tools.AnalyzeProductivityPatternsTool{Patterns: a.Patterns, Messages: a.Messages},
		&tools.DetectKnowledgeGapsTool{Gaps: a.Gaps, Messages: a.Messages},
		&tools.TrackDecisionEffectivenessTool{Decisions: a.Decisions},
		&tools.GenerateAnalyticsReportTool{Analytics: a.Analytics, Patterns: a.Patterns, Gaps: a.Gaps, Decisions: a.Decisions},
		&tools.GetProactiveInsightsTool{Gaps: a.Gaps, Patterns: a.Patterns},
		&tools.CheckForConflictsTool{Decisions: a.Decisions},
		&tools.SuggestRelevantContextTool{Assembler: a.Assembler},
		&tools.AutoTagConversationTool{Conversations: a.Conversations, Messages: a.Messages},
	}

	for _, t := range all {
		if err := a.Registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}
