package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `👋 Media relay bot

Copy posts from channels and groups, including restricted ones, into your own chat.

1. /setbot <token> - bind your relay bot (create one with @BotFather and press Start in it)
2. /addsession <session string> - add your user session to read private chats
3. /single - copy one message by link (or just send a link)
4. /batch - copy a range of messages starting from a link

Other commands:
/cancel, /stop - stop the current task
/status - current task and bindings
/rembot, /logout - remove the bot token or the user session
/setchat <chat_id>[/<thread_id>] - where to deliver
/setrename <tag>, /setcaption <text> - file name tag and custom caption
/replace <word> <replacement>, /delword <words...> - caption and name rules
/reset - clear delivery settings`

func handleCommand(ctx context.Context, b *Bot, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.conversations.Reset(msg.From.ID)
		b.reply(msg, helpText)
	case "batch":
		b.handleBatch(ctx, msg)
	case "single":
		b.handleSingle(ctx, msg)
	case "cancel", "stop":
		b.handleCancel(msg)
	case "status":
		b.handleStatus(ctx, msg)
	case "setbot":
		b.handleSetBot(ctx, msg)
	case "rembot":
		b.handleRemBot(ctx, msg)
	case "addsession":
		b.handleAddSession(ctx, msg)
	case "logout":
		b.handleLogout(ctx, msg)
	case "setchat", "setrename", "setcaption", "replace", "delword", "reset":
		b.handleSettings(ctx, msg)
	default:
		b.reply(msg, "Unknown command 🤔 Try /help")
	}
}
