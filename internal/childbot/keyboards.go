package childbot

import (
	"fmt"
	"strconv"

	"zenyx/internal/models"
	"zenyx/internal/pkg/utils"
	"zenyx/internal/transport"
)

// Callback data. Owner actions share the cfg: prefix.
const (
	cbMenu      = "cfg:menu"
	cbMessage   = "cfg:message"
	cbText      = "cfg:text"
	cbMedia     = "cfg:media"
	cbMediaDel  = "cfg:media_del"
	cbPlans     = "cfg:plans"
	cbPlanAdd   = "cfg:plan_add"
	cbPlanDel   = "cfg:plan_del:"
	cbGateway   = "cfg:gateway"
	cbGroups    = "cfg:groups"
	cbGroupAdd  = "cfg:group_add"
	cbGroupDel  = "cfg:group_del:"
	cbPreview   = "cfg:preview"
	cbCancel    = "cfg:cancel"
	cbBuyPrefix = "buy:"
	cbCheck     = "check:"
)

func back(data string) []transport.Button {
	return transport.Row(transport.Button{Text: "🔙 Voltar", Data: data})
}

func configKeyboard() transport.Keyboard {
	return transport.Keyboard{
		transport.Row(transport.Button{Text: "📝 Configurar mensagem", Data: cbMessage}),
		transport.Row(transport.Button{Text: "💰 Configurar PushinPay", Data: cbGateway}),
		transport.Row(transport.Button{Text: "👥 Configurar canal/grupo", Data: cbGroups}),
	}
}

func messageKeyboard(cfg *models.BotConfig) transport.Keyboard {
	kb := transport.Keyboard{
		transport.Row(
			transport.Button{Text: "🖼️ Mídia", Data: cbMedia},
			transport.Button{Text: "📝 Texto", Data: cbText},
		),
	}
	if cfg.Welcome.Media != nil {
		kb = append(kb, transport.Row(transport.Button{Text: "🗑️ Remover mídia atual", Data: cbMediaDel}))
	}
	return append(kb,
		transport.Row(transport.Button{Text: "💰 Criar planos", Data: cbPlans}),
		transport.Row(transport.Button{Text: "👁️ Visualização completa", Data: cbPreview}),
		back(cbMenu),
	)
}

func plansKeyboard(cfg *models.BotConfig) transport.Keyboard {
	kb := make(transport.Keyboard, 0, len(cfg.Plans)+2)
	for _, p := range cfg.Plans {
		kb = append(kb, transport.Row(transport.Button{
			Text: fmt.Sprintf("🗑️ %s - %s", utils.Truncate(p.Name, 24), utils.FormatBRL(p.Price)),
			Data: cbPlanDel + p.ID,
		}))
	}
	return append(kb,
		transport.Row(transport.Button{Text: "➕ Adicionar plano", Data: cbPlanAdd}),
		back(cbMessage),
	)
}

func groupsKeyboard(cfg *models.BotConfig) transport.Keyboard {
	kb := make(transport.Keyboard, 0, len(cfg.LinkedGroups)+2)
	for _, g := range cfg.LinkedGroups {
		kb = append(kb, transport.Row(transport.Button{
			Text: "🗑️ " + utils.Truncate(g.Title, 32),
			Data: cbGroupDel + strconv.FormatInt(g.ChatID, 10),
		}))
	}
	return append(kb,
		transport.Row(transport.Button{Text: "➕ Adicionar grupo/canal", Data: cbGroupAdd}),
		back(cbMenu),
	)
}

func cancelKeyboard(backTo string) transport.Keyboard {
	return transport.Keyboard{transport.Row(transport.Button{Text: "❌ Cancelar", Data: cbCancel + ":" + backTo})}
}

// planKeyboard is the buyer's plan picker.
func planKeyboard(plans []models.Plan) transport.Keyboard {
	kb := make(transport.Keyboard, 0, len(plans))
	for _, p := range plans {
		kb = append(kb, transport.Row(transport.Button{
			Text: fmt.Sprintf("%s - %s (%s)", p.Name, utils.FormatBRL(p.Price), p.DurationLabel()),
			Data: cbBuyPrefix + p.ID,
		}))
	}
	return kb
}

func checkKeyboard(paymentID string) transport.Keyboard {
	return transport.Keyboard{transport.Row(transport.Button{Text: "✅ Verificar pagamento", Data: cbCheck + paymentID})}
}
