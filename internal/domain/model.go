package domain

import "time"

// 模型供应商
type ProviderType string

var (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGoogle    ProviderType = "google"
	ProviderOpenAI    ProviderType = "openai"
)

func (p ProviderType) Valid() bool {
	switch p {
	case ProviderAnthropic, ProviderGoogle, ProviderOpenAI:
		return true
	}
	return false
}

// ModelDescriptor 静态配置的模型描述
type ModelDescriptor struct {
	ID          string       `json:"id"`
	Provider    ProviderType `json:"provider"`
	DisplayName string       `json:"name"`
	Description string       `json:"description"`

	// 实际调用上游时使用的模型名
	UpstreamModel string `json:"upstreamModel"`

	// 单次请求的最大输出 token
	MaxOutputTokens int `json:"maxTokens"`
}

const DefaultModelID = "claude-sonnet-4-5"

var AvailableModels = []ModelDescriptor{
	{
		ID:              "claude-sonnet-4-5",
		Provider:        ProviderAnthropic,
		DisplayName:     "Claude Sonnet 4.5",
		Description:     "Anthropic's most capable model for coding",
		UpstreamModel:   "claude-sonnet-4-5",
		MaxOutputTokens: 32768,
	},
	{
		ID:              "gemini-3-pro",
		Provider:        ProviderGoogle,
		DisplayName:     "Gemini 3 Pro",
		Description:     "Google's latest reasoning model",
		UpstreamModel:   "gemini-3-pro-preview",
		MaxOutputTokens: 65536,
	},
	{
		ID:              "gpt-5",
		Provider:        ProviderOpenAI,
		DisplayName:     "GPT-5",
		Description:     "OpenAI's most advanced model",
		UpstreamModel:   "gpt-5",
		MaxOutputTokens: 32768,
	},
}

// 主请求失败后依次尝试的模型
var FallbackOrder = []string{"claude-sonnet-4-5", "gemini-3-pro", "gpt-5"}

// LookupModel finds a statically configured model by id.
func LookupModel(id string) (ModelDescriptor, bool) {
	for _, m := range AvailableModels {
		if m.ID == id {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}

// 生成请求（每轮对话一个）
type GenerationRequest struct {
	UserMessage    string   `json:"userMessage"`
	ExistingFiles  *FileMap `json:"files"`
	ModelID        string   `json:"modelId"`
	ConversationID string   `json:"conversationId,omitempty"`
}

// IsNewProject reports whether the request starts from an empty file set.
func (r *GenerationRequest) IsNewProject() bool {
	return r.ExistingFiles == nil || r.ExistingFiles.Len() == 0
}

type GenerationResult struct {
	Message   string          `json:"message"`
	Files     *FileMap        `json:"files"`
	UsedModel ModelDescriptor `json:"usedModel"`

	// 实际调用了几个模型
	Attempts int `json:"attempts"`

	// 通过单文件重新生成修复的文件
	RecoveredFiles []string `json:"recoveredFiles,omitempty"`

	// 仍然缺失的截断文件
	UnrecoveredFile string `json:"unrecoveredFile,omitempty"`

	GenerationID uint64 `json:"generationID,omitempty"`
}

// 解析结果状态
type ParseStatus int

const (
	ParseComplete ParseStatus = iota
	ParseTruncated
)

func (s ParseStatus) String() string {
	if s == ParseComplete {
		return "complete"
	}
	return "truncated"
}

type ParseResult struct {
	Message string
	Files   *FileMap
	Status  ParseStatus

	// 第一个未能闭合或解码失败的文件，Truncated 时才可能有值
	IncompleteFile string
}

func (r ParseResult) IsComplete() bool {
	return r.Status == ParseComplete
}

// 进度事件阶段
type ProgressStage string

var (
	StageProviderSwitch ProgressStage = "provider_switch"
	StageFallback       ProgressStage = "fallback"
	StageRecovering     ProgressStage = "recovering"
	StageRecoveringFile ProgressStage = "recovering_file"
)

// ProgressEvent 只在流中转发，不持久化
type ProgressEvent struct {
	Stage     ProgressStage `json:"stage"`
	Provider  ProviderType  `json:"provider,omitempty"`
	ModelID   string        `json:"modelId,omitempty"`
	ModelName string        `json:"modelName,omitempty"`
	File      string        `json:"file,omitempty"`
	Attempt   int           `json:"attempt,omitempty"`
	Total     int           `json:"total,omitempty"`
}

// 沙箱会话
type SandboxSession struct {
	ID  string `json:"id"`
	Key string `json:"key"`

	ProjectDirectory      string `json:"projectDirectory"`
	DependenciesInstalled bool   `json:"dependenciesInstalled"`
	DevServerRunning      bool   `json:"devServerRunning"`
	PreviewURL            string `json:"previewURL,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *SandboxSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type Deployment struct {
	URL       string    `json:"url"`
	SandboxID string    `json:"sandboxId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// 生成记录状态
const (
	GenerationStatusPending    = "PENDING"
	GenerationStatusInProgress = "IN_PROGRESS"
	GenerationStatusCompleted  = "COMPLETED"
	GenerationStatusFailed     = "FAILED"
	GenerationStatusCancelled  = "CANCELLED"
)

// Generation 一次生成请求的运行记录
type Generation struct {
	ID        uint64    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	InstanceID     string `json:"instanceID"`
	RequestID      string `json:"requestID"`
	ConversationID string `json:"conversationID"`

	RequestModel string `json:"requestModel"`
	UsedModel    string `json:"usedModel"`

	// PENDING, IN_PROGRESS, COMPLETED, FAILED, CANCELLED
	Status string `json:"status"`

	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	AttemptCount   uint64   `json:"attemptCount"`
	RecoveredFiles []string `json:"recoveredFiles"`
	FileCount      int      `json:"fileCount"`
	ChangedFiles   int      `json:"changedFiles"`

	// 估算值（cl100k）
	PromptTokens uint64 `json:"promptTokens"`
	OutputTokens uint64 `json:"outputTokens"`
	// 估算成本（微美元）
	Cost uint64 `json:"cost"`

	PreviewURL string `json:"previewURL"`
	Error      string `json:"error"`
}

// GenerationAttempt 对单个模型的一次调用
type GenerationAttempt struct {
	ID        uint64    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	GenerationID uint64       `json:"generationID"`
	ModelID      string       `json:"modelID"`
	Provider     ProviderType `json:"provider"`

	// IN_PROGRESS, COMPLETED, FAILED, CANCELLED
	Status string `json:"status"`

	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	OutputChars int    `json:"outputChars"`
	ParseStatus string `json:"parseStatus"`
	ErrorKind   string `json:"errorKind"`
	Error       string `json:"error"`
}

// Project 会话对应的最新文件状态
type Project struct {
	ID        uint64    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	ConversationID   string   `json:"conversationID"`
	Files            *FileMap `json:"files"`
	LastGenerationID uint64   `json:"lastGenerationID"`
	PreviewURL       string   `json:"previewURL"`
	SandboxID        string   `json:"sandboxID"`
}

// 快照（对象存储中的一次文件归档）
type Snapshot struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationID"`
	GenerationID   uint64    `json:"generationID"`
	FileCount      int       `json:"fileCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Cooldown 持久化的供应商冷却状态，重启后恢复
type Cooldown struct {
	ID        uint64    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Provider     ProviderType `json:"provider"`
	UntilTime    time.Time    `json:"untilTime"`
	Reason       string       `json:"reason"`
	FailureCount int          `json:"failureCount"`
}
