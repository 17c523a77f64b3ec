package llm

// Model identifier constants for the supported providers.

// OpenAI model identifiers
const (
	ModelOpenAIGPT4o     = "gpt-4o"
	ModelOpenAIGPT4oMini = "gpt-4o-mini"
)

// Anthropic model identifiers
const (
	// ModelAnthropicClaudeSonnet4 is Claude Sonnet 4: Balanced performance.
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	// ModelAnthropicClaudeHaiku35 is Claude Haiku 3.5: Fast and cheap, fine for short selections.
	ModelAnthropicClaudeHaiku35 = "claude-3-5-haiku-20241022"
)

// DeepSeek model identifiers
const (
	ModelDeepSeekChat = "deepseek-chat"
)

// Gemini model identifiers
const (
	ModelGeminiFlash25 = "gemini-2.5-flash"
)

// Chinese vendor model identifiers
const (
	ModelZhipuGLM4Flash = "glm-4-flash"
	ModelZhipuGLM4      = "glm-4"
	ModelDoubaoPro32K   = "doubao-1-5-pro-32k-250115"
	ModelQwenPlus       = "qwen-plus"
	ModelQwenTurbo      = "qwen-turbo"
	ModelMoonshotV18K   = "moonshot-v1-8k"
)

// Groq model identifiers
const (
	ModelGroqLlama33 = "llama-3.3-70b-versatile"
)
