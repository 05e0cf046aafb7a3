package capability

// Type identifies one kind of work an agent can perform. The set of valid
// types is closed; see Vocabulary.
type Type string

// Conversation and language capabilities
const (
	TypeConversation       Type = "conversation"
	TypeSummarization      Type = "summarization"
	TypeTranslation        Type = "translation"
	TypeParaphrasing       Type = "paraphrasing"
	TypeSentimentAnalysis  Type = "sentiment_analysis"
	TypeEntityExtraction   Type = "entity_extraction"
	TypeIntentDetection    Type = "intent_detection"
	TypeQuestionAnswering  Type = "question_answering"
	TypeTextGeneration     Type = "text_generation"
	TypeTextClassification Type = "text_classification"
	TypeGrammarCorrection  Type = "grammar_correction"
	TypeKeywordExtraction  Type = "keyword_extraction"
)

// Planning and reasoning capabilities
const (
	TypeTaskPlanning       Type = "task_planning"
	TypeTaskDecomposition  Type = "task_decomposition"
	TypeGoalTracking       Type = "goal_tracking"
	TypeScheduling         Type = "scheduling"
	TypePrioritization     Type = "prioritization"
	TypeDecisionSupport    Type = "decision_support"
	TypeConstraintSolving  Type = "constraint_solving"
	TypeEstimation         Type = "estimation"
	TypeRouteOptimization  Type = "route_optimization"
	TypeResourceAllocation Type = "resource_allocation"
)

// Knowledge and memory capabilities
const (
	TypeKnowledgeQuery     Type = "knowledge_query"
	TypeKnowledgeIngestion Type = "knowledge_ingestion"
	TypeFactChecking       Type = "fact_checking"
	TypeMemoryRecall       Type = "memory_recall"
	TypeMemoryStorage      Type = "memory_storage"
	TypeContextRetrieval   Type = "context_retrieval"
	TypeSemanticSearch     Type = "semantic_search"
	TypeGraphTraversal     Type = "graph_traversal"
	TypeOntologyMapping    Type = "ontology_mapping"
)

// Data processing capabilities
const (
	TypeDataExtraction     Type = "data_extraction"
	TypeDataTransformation Type = "data_transformation"
	TypeDataValidation     Type = "data_validation"
	TypeDataAggregation    Type = "data_aggregation"
	TypeDataDeduplication  Type = "data_deduplication"
	TypeDataEnrichment     Type = "data_enrichment"
	TypeAnomalyDetection   Type = "anomaly_detection"
	TypeTrendAnalysis      Type = "trend_analysis"
	TypeReportGeneration   Type = "report_generation"
	TypeChartGeneration    Type = "chart_generation"
	TypeFormatConversion   Type = "format_conversion"
)

// Communication and integration capabilities
const (
	TypeEmailComposition Type = "email_composition"
	TypeEmailDispatch    Type = "email_dispatch"
	TypeEmailTriage      Type = "email_triage"
	TypeCalendarLookup   Type = "calendar_lookup"
	TypeCalendarBooking  Type = "calendar_booking"
	TypeContactLookup    Type = "contact_lookup"
	TypeNotification     Type = "notification"
	TypeWebhookDelivery  Type = "webhook_delivery"
	TypeAPIInvocation    Type = "api_invocation"
	TypeFeedIngestion    Type = "feed_ingestion"
)

// Media capabilities
const (
	TypeImageGeneration     Type = "image_generation"
	TypeImageCaptioning     Type = "image_captioning"
	TypeImageClassification Type = "image_classification"
	TypeAudioTranscription  Type = "audio_transcription"
	TypeSpeechSynthesis     Type = "speech_synthesis"
	TypeDocumentParsing     Type = "document_parsing"
	TypeDocumentRendering   Type = "document_rendering"
	TypeOCR                 Type = "ocr"
)

// Web and research capabilities
const (
	TypeWebSearch      Type = "web_search"
	TypeWebScraping    Type = "web_scraping"
	TypeURLSummary     Type = "url_summary"
	TypeCitationCheck  Type = "citation_check"
	TypeNewsMonitoring Type = "news_monitoring"
)

// Operational capabilities
const (
	TypeHealthDiagnostics Type = "health_diagnostics"
	TypeMetricsCollection Type = "metrics_collection"
	TypeLogAnalysis       Type = "log_analysis"
	TypeAuditRecording    Type = "audit_recording"
	TypeStateSnapshot     Type = "state_snapshot"
	TypeSelfTest          Type = "self_test"
)

// vocabulary is the closed set of valid capability types.
var vocabulary = func() map[Type]struct{} {
	all := []Type{
		TypeConversation, TypeSummarization, TypeTranslation, TypeParaphrasing,
		TypeSentimentAnalysis, TypeEntityExtraction, TypeIntentDetection,
		TypeQuestionAnswering, TypeTextGeneration, TypeTextClassification,
		TypeGrammarCorrection, TypeKeywordExtraction,
		TypeTaskPlanning, TypeTaskDecomposition, TypeGoalTracking,
		TypeScheduling, TypePrioritization, TypeDecisionSupport,
		TypeConstraintSolving, TypeEstimation, TypeRouteOptimization,
		TypeResourceAllocation,
		TypeKnowledgeQuery, TypeKnowledgeIngestion, TypeFactChecking,
		TypeMemoryRecall, TypeMemoryStorage, TypeContextRetrieval,
		TypeSemanticSearch, TypeGraphTraversal, TypeOntologyMapping,
		TypeDataExtraction, TypeDataTransformation, TypeDataValidation,
		TypeDataAggregation, TypeDataDeduplication, TypeDataEnrichment,
		TypeAnomalyDetection, TypeTrendAnalysis, TypeReportGeneration,
		TypeChartGeneration, TypeFormatConversion,
		TypeEmailComposition, TypeEmailDispatch, TypeEmailTriage,
		TypeCalendarLookup, TypeCalendarBooking, TypeContactLookup,
		TypeNotification, TypeWebhookDelivery, TypeAPIInvocation,
		TypeFeedIngestion,
		TypeImageGeneration, TypeImageCaptioning, TypeImageClassification,
		TypeAudioTranscription, TypeSpeechSynthesis, TypeDocumentParsing,
		TypeDocumentRendering, TypeOCR,
		TypeWebSearch, TypeWebScraping, TypeURLSummary, TypeCitationCheck,
		TypeNewsMonitoring,
		TypeHealthDiagnostics, TypeMetricsCollection, TypeLogAnalysis,
		TypeAuditRecording, TypeStateSnapshot, TypeSelfTest,
	}
	m := make(map[Type]struct{}, len(all))
	for _, t := range all {
		m[t] = struct{}{}
	}
	return m
}()

// Known reports whether t belongs to the registered vocabulary.
func Known(t Type) bool {
	_, ok := vocabulary[t]
	return ok
}

// VocabularySize returns the number of registered capability types.
func VocabularySize() int {
	return len(vocabulary)
}
