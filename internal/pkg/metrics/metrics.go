// Package metrics holds the prometheus collectors of the chat core.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesAppended counts stored messages by type
	MessagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "educhat_messages_appended_total",
		Help: "Messages appended to chats, by message type.",
	}, []string{"type"})

	// Uploads counts attachment uploads by outcome
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "educhat_uploads_total",
		Help: "Attachment uploads, by result.",
	}, []string{"result"})

	// AssistantTurns counts assistant state transitions
	AssistantTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "educhat_assistant_turns_total",
		Help: "Assistant turns entering each state.",
	}, []string{"state"})

	// Reactions counts reaction increments
	Reactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "educhat_reactions_total",
		Help: "Reaction increments.",
	})

	// RepairedFiles counts placeholder payloads written by the repair job
	RepairedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "educhat_repaired_files_total",
		Help: "Missing attachments replaced by a placeholder.",
	})
)

// Handler serves the default registry
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
