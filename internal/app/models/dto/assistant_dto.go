package dto

// AssistantTurn is one role-tagged entry of a conversation history
type AssistantTurn struct {
	Role    string `json:"role" binding:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

// AssistantRequest asks the assistant for a reply
type AssistantRequest struct {
	Message string          `json:"message" binding:"required"`
	History []AssistantTurn `json:"history" binding:"dive"`
}

// AssistantResponse carries the generated reply
type AssistantResponse struct {
	Text   string `json:"text,omitempty"`
	Intent string `json:"intent,omitempty"`
}

// AssistantErrorResponse is the body of a failed generation
type AssistantErrorResponse struct {
	Error string `json:"error" example:"Ошибка OpenAI API"`
}
