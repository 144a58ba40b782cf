package bot

import (
	"strconv"

	"zenyx/internal/models"
	"zenyx/internal/transport"
)

// Callback data of the root bot.
const (
	cbVerify       = "verify_channel"
	cbMenu         = "main_menu"
	cbCreateBot    = "create_bot"
	cbMyBots       = "my_bots"
	cbBotPrefix    = "bot:"
	cbRestart      = "restart:"
	cbBalance      = "balance"
	cbWithdraw     = "withdraw"
	cbSetPix       = "set_pix"
	cbReferral     = "referral"
	cbVIP          = "admin_vip"
	cbVIPActivate  = "vip_activate"
	cbHowItWorks   = "how_it_works"
	cbCancel       = "cancel"
	cbAdmin        = "admin_panel"
	cbAdminPending = "admin_pending"
	cbAdminBots    = "admin_bots"
)

func btn(text, data string) transport.Button {
	return transport.Button{Text: text, Data: data}
}

func backRow(data string) []transport.Button {
	return transport.Row(btn("🔙 Voltar", data))
}

// MainMenuKeyboard builds the root menu. Admins get an extra row.
func MainMenuKeyboard(isAdmin bool) transport.Keyboard {
	kb := transport.Keyboard{
		transport.Row(btn("🤖 Criar seu Bot", cbCreateBot)),
		transport.Row(btn("📋 Meus bots", cbMyBots), btn("💰 Meu saldo", cbBalance)),
		transport.Row(btn("👥 Convide e ganhe", cbReferral), btn("👑 Seja Admin VIP", cbVIP)),
		transport.Row(btn("ℹ️ Como funciona", cbHowItWorks)),
	}
	if isAdmin {
		kb = append(kb, transport.Row(btn("🛠 Painel administrativo", cbAdmin)))
	}
	return kb
}

func verifyKeyboard(channelLink string) transport.Keyboard {
	kb := transport.Keyboard{}
	if channelLink != "" {
		kb = append(kb, transport.Row(transport.Button{Text: "📢 Entrar no canal", URL: channelLink}))
	}
	return append(kb, transport.Row(btn("✅ Verificar", cbVerify)))
}

func cancelKeyboard() transport.Keyboard {
	return transport.Keyboard{transport.Row(btn("❌ Cancelar", cbCancel))}
}

func botsKeyboard(bots []models.BotConfig) transport.Keyboard {
	kb := make(transport.Keyboard, 0, len(bots)+1)
	for _, b := range bots {
		kb = append(kb, transport.Row(btn("🤖 @"+b.Username, cbBotPrefix+strconv.FormatInt(b.BotID, 10))))
	}
	return append(kb, backRow(cbMenu))
}

func botKeyboard(cfg *models.BotConfig) transport.Keyboard {
	return transport.Keyboard{
		transport.Row(transport.Button{Text: "🚀 Abrir bot", URL: "https://t.me/" + cfg.Username}),
		transport.Row(btn("🔄 Reiniciar", cbRestart+strconv.FormatInt(cfg.BotID, 10))),
		backRow(cbMyBots),
	}
}

func balanceKeyboard(hasKey bool) transport.Keyboard {
	keyText := "🔑 Cadastrar chave PIX"
	if hasKey {
		keyText = "🔑 Alterar chave PIX"
	}
	return transport.Keyboard{
		transport.Row(btn("💸 Sacar", cbWithdraw)),
		transport.Row(btn(keyText, cbSetPix)),
		backRow(cbMenu),
	}
}

func vipKeyboard(used bool) transport.Keyboard {
	if used {
		return transport.Keyboard{backRow(cbMenu)}
	}
	return transport.Keyboard{
		transport.Row(btn("🎁 Ativar Período Gratuito", cbVIPActivate)),
		backRow(cbMenu),
	}
}

func adminKeyboard() transport.Keyboard {
	return transport.Keyboard{
		transport.Row(btn("🤖 Bots em execução", cbAdminBots)),
		transport.Row(btn("⏳ Pagamentos pendentes", cbAdminPending)),
		backRow(cbMenu),
	}
}
