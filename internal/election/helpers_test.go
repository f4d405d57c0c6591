package election

import "github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/message"

func okMsg(round, n int) message.Ok {
	return message.Ok{Round: round, Peers: message.JustCount(n)}
}
