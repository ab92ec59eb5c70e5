package models

// RoleType defines the user role type
type RoleType string

const (
	RoleStudent RoleType = "student"
	RoleTeacher RoleType = "teacher"
	RoleAdmin   RoleType = "admin"
	RoleBot     RoleType = "bot"
)

// Reserved identifiers of the assistant
const (
	DefaultAssistantChatID = "bot-chat"
	DefaultBotUserID       = "bot"
	DefaultBotName         = "ChatGPT Бот"
)
