package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"zenyx/internal/config"
	"zenyx/internal/conversation"
	"zenyx/internal/models"
	"zenyx/internal/pkg/utils"
	"zenyx/internal/registry"
	"zenyx/internal/repository"
	"zenyx/internal/transport"
	"zenyx/internal/wallet"
)

// Fleet is the part of the bot registry the root bot drives.
type Fleet interface {
	Create(ctx context.Context, ownerID int64, token string) (*registry.Handle, error)
	Restart(ctx context.Context, token string) (*registry.Handle, error)
	ListRunning() []string
}

// Deps bundles what the root bot handlers need.
type Deps struct {
	Users    *repository.UserRepository
	Bots     *repository.BotRepository
	States   *repository.StateRepository
	Payments *repository.PaymentRepository
	Fleet    Fleet
	Wallet   *wallet.Service
}

// Sender identifies who triggered an update.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Handlers implements the root bot flows on top of a Messenger.
type Handlers struct {
	cfg     config.BotConfig
	deps    Deps
	msgr    transport.Messenger
	machine *conversation.Machine
	logger  *zap.Logger
}

func NewHandlers(cfg config.BotConfig, deps Deps, msgr transport.Messenger, logger *zap.Logger) *Handlers {
	h := &Handlers{cfg: cfg, deps: deps, msgr: msgr, logger: logger}
	h.machine = conversation.New(deps.States, logger).
		On(models.StateWaitingToken, h.onToken).
		On(models.StateWaitingPixKey, h.onPixKey).
		Fallback(h.onIdle)
	return h
}

func (h *Handlers) reply(chatID int64, text string, kb transport.Keyboard) error {
	if err := h.msgr.SendText(chatID, text, kb); err != nil {
		h.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
		return err
	}
	return nil
}

func (h *Handlers) fail(chatID int64, err error) error {
	h.logger.Debug("Handler error", zap.Int64("chat_id", chatID), zap.Error(err))
	return h.reply(chatID, conversation.Describe(err), transport.Keyboard{backRow(cbMenu)})
}

// inChannel reports whether the user joined the platform channel.
// The gate is off when no channel is configured.
func (h *Handlers) inChannel(userID int64) bool {
	if h.cfg.ChannelID == 0 {
		return true
	}
	status, err := h.msgr.MemberStatus(h.cfg.ChannelID, userID)
	if err != nil {
		h.logger.Warn("Channel membership check failed", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	switch status {
	case "member", transport.StatusAdministrator, transport.StatusCreator:
		return true
	}
	return false
}

func (h *Handlers) sendVerification(chatID int64, failed bool) error {
	text := "🔒 <b>VERIFICAÇÃO NECESSÁRIA</b>\n\nPara usar todas as funcionalidades do bot, você precisa entrar no nosso canal oficial.\n\nApós entrar, clique no botão abaixo para verificar:"
	if failed {
		text = "❌ Você ainda não entrou no canal. Por favor, entre no canal e tente novamente.\n\n" + text
	}
	return h.reply(chatID, text, verifyKeyboard(h.cfg.ChannelLink))
}

func (h *Handlers) sendMainMenu(chatID, userID int64) error {
	return h.reply(chatID,
		"🔥 <b>BOT CRIADOR DE BOTS</b> 🔥\n\nEste bot permite criar seu próprio bot para gerenciar grupos VIP com sistema de pagamento integrado.\n\nEscolha uma opção abaixo:",
		MainMenuKeyboard(h.cfg.IsAdmin(userID)))
}

// ── /start ────────────────────────────────────────────────────────────

// Start registers the user, applies a ref_<id> payload and shows the menu
// or the channel gate.
func (h *Handlers) Start(ctx context.Context, from Sender, chatID int64, payload string) error {
	if _, err := h.deps.Users.Touch(ctx, from.ID, from.Username, from.FirstName, from.LastName); err != nil {
		return h.fail(chatID, err)
	}
	if referrer, ok := utils.ParseReferralPayload(payload); ok {
		if err := h.deps.Wallet.RegisterReferral(ctx, from.ID, referrer); err != nil {
			h.logger.Debug("Referral ignored", zap.Int64("user_id", from.ID), zap.Int64("referrer_id", referrer), zap.Error(err))
		}
	}
	if err := h.machine.Reset(ctx, conversation.RootScope, from.ID); err != nil {
		h.logger.Warn("Failed to reset state", zap.Int64("user_id", from.ID), zap.Error(err))
	}
	if !h.inChannel(from.ID) {
		return h.sendVerification(chatID, false)
	}
	return h.sendMainMenu(chatID, from.ID)
}

// Cancel discards the step in progress.
func (h *Handlers) Cancel(ctx context.Context, from Sender, chatID int64) error {
	if err := h.machine.Reset(ctx, conversation.RootScope, from.ID); err != nil {
		return h.fail(chatID, err)
	}
	return h.sendMainMenu(chatID, from.ID)
}

// Message handles private text.
func (h *Handlers) Message(ctx context.Context, from Sender, chatID int64, text string) error {
	err := h.machine.Dispatch(ctx, conversation.Message{
		Scope:  conversation.RootScope,
		UserID: from.ID,
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return h.fail(chatID, err)
	}
	return nil
}

func (h *Handlers) onIdle(ctx context.Context, msg conversation.Message) error {
	return h.sendMainMenu(msg.ChatID, msg.UserID)
}

func (h *Handlers) onToken(ctx context.Context, msg conversation.Message) error {
	token := strings.TrimSpace(msg.Text)
	handle, err := h.deps.Fleet.Create(ctx, msg.UserID, token)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInvalidInput):
		return h.reply(msg.ChatID, "❌ <b>TOKEN INVÁLIDO</b>\n\nO token que você enviou não está no formato correto ou foi recusado pelo Telegram.\n\n"+
			"Um token válido tem o formato:\n<code>123456789:ABCDefGhIJKlmNoPQRsTUVwxyZ</code>\n\nPor favor, verifique e envie novamente.", cancelKeyboard())
	case errors.Is(err, models.ErrTransportUnavailable):
		return h.reply(msg.ChatID, "⚠️ Não foi possível validar o token agora. Tente novamente em instantes.", cancelKeyboard())
	default:
		if resetErr := h.machine.Reset(ctx, conversation.RootScope, msg.UserID); resetErr != nil {
			h.logger.Warn("Failed to reset state", zap.Error(resetErr))
		}
		if errors.Is(err, models.ErrLimitReached) {
			return h.reply(msg.ChatID, "❌ Você atingiu o limite máximo de bots permitidos.", transport.Keyboard{backRow(cbMenu)})
		}
		return err
	}

	if err := h.machine.Reset(ctx, conversation.RootScope, msg.UserID); err != nil {
		h.logger.Warn("Failed to reset state", zap.Error(err))
	}
	h.logger.Info("Bot created", zap.Int64("owner_id", msg.UserID), zap.String("bot", handle.Username))
	return h.reply(msg.ChatID, fmt.Sprintf("✅ <b>BOT CRIADO COM SUCESSO!</b>\n\nSeu bot @%s está online e pronto para uso.\n\n"+
		"Configure as opções do seu bot enviando o comando /start para ele.", handle.Username),
		transport.Keyboard{
			transport.Row(transport.Button{Text: "🚀 Iniciar", URL: "https://t.me/" + handle.Username}),
			backRow(cbMenu),
		})
}

func (h *Handlers) onPixKey(ctx context.Context, msg conversation.Message) error {
	u, err := h.deps.Wallet.SetPixKey(ctx, msg.UserID, msg.Text)
	if errors.Is(err, models.ErrInvalidInput) {
		return h.reply(msg.ChatID, "❌ Chave PIX inválida. Envie CPF, CNPJ, e-mail, telefone ou chave aleatória.", cancelKeyboard())
	}
	if err != nil {
		return err
	}
	if err := h.machine.Reset(ctx, conversation.RootScope, msg.UserID); err != nil {
		h.logger.Warn("Failed to reset state", zap.Error(err))
	}
	_ = h.reply(msg.ChatID, fmt.Sprintf("✅ Chave PIX salva: <code>%s</code> (%s)", html.EscapeString(u.PixKey), u.PixKeyType), nil)

	if h.deps.Wallet.CanWithdraw(u) != nil {
		return h.sendBalance(ctx, msg.ChatID, msg.UserID)
	}
	return h.withdraw(ctx, msg.ChatID, msg.UserID)
}

// ── Callbacks ─────────────────────────────────────────────────────────

// Callback routes a button press.
func (h *Handlers) Callback(ctx context.Context, from Sender, chatID int64, data string) error {
	if err := h.callback(ctx, from, chatID, data); err != nil {
		return h.fail(chatID, err)
	}
	return nil
}

func (h *Handlers) callback(ctx context.Context, from Sender, chatID int64, data string) error {
	switch {
	case data == cbVerify:
		if !h.inChannel(from.ID) {
			return h.sendVerification(chatID, true)
		}
		_ = h.reply(chatID, "✅ <b>VERIFICAÇÃO CONCLUÍDA</b>\n\nObrigado por entrar no nosso canal!", nil)
		return h.sendMainMenu(chatID, from.ID)

	case data == cbMenu:
		return h.sendMainMenu(chatID, from.ID)

	case data == cbCancel:
		return h.Cancel(ctx, from, chatID)

	case data == cbCreateBot:
		if !h.inChannel(from.ID) {
			return h.sendVerification(chatID, false)
		}
		if err := h.machine.Enter(ctx, conversation.RootScope, from.ID, models.StateWaitingToken); err != nil {
			return err
		}
		return h.reply(chatID, "🤖 <b>CRIAR SEU BOT</b>\n\nPara criar seu próprio bot, siga os passos abaixo:\n\n"+
			"1️⃣ Acesse @BotFather no Telegram\n2️⃣ Envie /newbot e siga as instruções\n"+
			"3️⃣ Após criar o bot, copie o token que o BotFather enviar\n4️⃣ Cole o token aqui neste chat", cancelKeyboard())

	case data == cbMyBots:
		return h.sendMyBots(ctx, chatID, from.ID)

	case strings.HasPrefix(data, cbBotPrefix):
		cfg, err := h.ownedBot(ctx, from.ID, strings.TrimPrefix(data, cbBotPrefix))
		if err != nil {
			return err
		}
		return h.sendBotInfo(chatID, cfg)

	case strings.HasPrefix(data, cbRestart):
		cfg, err := h.ownedBot(ctx, from.ID, strings.TrimPrefix(data, cbRestart))
		if err != nil {
			return err
		}
		if _, err := h.deps.Fleet.Restart(ctx, cfg.Token); err != nil {
			return err
		}
		return h.reply(chatID, fmt.Sprintf("🔄 @%s reiniciado.", cfg.Username), botKeyboard(cfg))

	case data == cbBalance:
		return h.sendBalance(ctx, chatID, from.ID)

	case data == cbWithdraw:
		return h.withdraw(ctx, chatID, from.ID)

	case data == cbSetPix:
		if err := h.machine.Enter(ctx, conversation.RootScope, from.ID, models.StateWaitingPixKey); err != nil {
			return err
		}
		return h.reply(chatID, "🔑 Envie sua chave PIX (CPF, CNPJ, e-mail, telefone ou chave aleatória).", cancelKeyboard())

	case data == cbReferral:
		return h.sendReferral(ctx, chatID, from.ID)

	case data == cbVIP:
		return h.sendVIP(ctx, chatID, from.ID)

	case data == cbVIPActivate:
		u, err := h.deps.Wallet.ActivateVIP(ctx, from.ID)
		if err != nil {
			return err
		}
		return h.reply(chatID, fmt.Sprintf("🎉 <b>PERÍODO GRATUITO ATIVADO!</b>\n\nSeu período de Admin VIP foi ativado com sucesso!\n\nVálido até %s.",
			u.AdminVIPExpiry.Format("02/01/2006")), transport.Keyboard{backRow(cbMenu)})

	case data == cbHowItWorks:
		return h.reply(chatID, howItWorks(h.deps.Wallet.Options()), transport.Keyboard{backRow(cbMenu)})

	case data == cbAdmin, data == cbAdminPending, data == cbAdminBots:
		if !h.cfg.IsAdmin(from.ID) {
			return models.ErrUnauthorized
		}
		return h.adminAction(ctx, chatID, data)
	}
	h.logger.Debug("Unknown callback", zap.String("data", data))
	return nil
}

func (h *Handlers) ownedBot(ctx context.Context, userID int64, rawID string) (*models.BotConfig, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, models.ErrInvalidInput
	}
	cfg, err := h.deps.Bots.FindByBotID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg.OwnerID != userID {
		return nil, models.ErrUnauthorized
	}
	return cfg, nil
}

func (h *Handlers) sendMyBots(ctx context.Context, chatID, userID int64) error {
	u, err := h.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	bots := make([]models.BotConfig, 0, len(u.Bots))
	for _, token := range u.Bots {
		cfg, err := h.deps.Bots.FindByToken(ctx, token)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		bots = append(bots, *cfg)
	}
	if len(bots) == 0 {
		return h.reply(chatID, "📋 Você ainda não criou nenhum bot.", transport.Keyboard{
			transport.Row(btn("🤖 Criar seu Bot", cbCreateBot)),
			backRow(cbMenu),
		})
	}
	return h.reply(chatID, fmt.Sprintf("📋 <b>MEUS BOTS</b> (%d)", len(bots)), botsKeyboard(bots))
}

func (h *Handlers) running(token string) bool {
	for _, t := range h.deps.Fleet.ListRunning() {
		if t == token {
			return true
		}
	}
	return false
}

func (h *Handlers) sendBotInfo(chatID int64, cfg *models.BotConfig) error {
	status := "🔴 Parado"
	if h.running(cfg.Token) {
		status = "🟢 Online"
	}
	ready := "❌ Incompleta"
	if cfg.Ready() {
		ready = "✅ Pronta"
	}
	text := fmt.Sprintf("🤖 <b>@%s</b>\n\nStatus: %s\nConfiguração: %s\nPlanos: %d\nGrupos/canais: %d\nCriado em: %s",
		cfg.Username, status, ready, len(cfg.Plans), len(cfg.LinkedGroups), cfg.CreatedAt.Format("02/01/2006"))
	return h.reply(chatID, text, botKeyboard(cfg))
}

func (h *Handlers) sendBalance(ctx context.Context, chatID, userID int64) error {
	u, err := h.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	opts := h.deps.Wallet.Options()

	var b strings.Builder
	fmt.Fprintf(&b, "💰 <b>SEU SALDO</b>\n\nSaldo atual: <b>%s</b>\nVendas: %d\nFaturamento: %s\n\n",
		utils.FormatBRL(u.Balance), u.TotalSales, utils.FormatBRL(u.TotalRevenue))
	fmt.Fprintf(&b, "💡 Para sacar, você precisa ter no mínimo %s e respeitar o intervalo de %d dias entre saques.\n",
		utils.FormatBRL(opts.MinWithdrawal), int(opts.Interval.Hours()/24))
	if next, ok := h.deps.Wallet.NextWithdrawal(u); ok {
		fmt.Fprintf(&b, "\nPróximo saque liberado em: %s", next.Format("02/01/2006 15:04"))
	}
	if u.PixKey != "" {
		fmt.Fprintf(&b, "\nChave PIX: <code>%s</code>", html.EscapeString(u.PixKey))
	}
	return h.reply(chatID, b.String(), balanceKeyboard(u.PixKey != ""))
}

func (h *Handlers) withdraw(ctx context.Context, chatID, userID int64) error {
	u, err := h.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	opts := h.deps.Wallet.Options()
	switch err := h.deps.Wallet.CanWithdraw(u); {
	case errors.Is(err, models.ErrInsufficientBalance):
		return h.reply(chatID, fmt.Sprintf("⚠️ Saldo insuficiente. Saldo mínimo: %s", utils.FormatBRL(opts.MinWithdrawal)), balanceKeyboard(u.PixKey != ""))
	case errors.Is(err, models.ErrWithdrawalTooSoon):
		next, _ := h.deps.Wallet.NextWithdrawal(u)
		return h.reply(chatID, fmt.Sprintf("⚠️ Você precisa aguardar %d dias desde o último saque. Próximo saque: %s",
			int(opts.Interval.Hours()/24), next.Format("02/01/2006 15:04")), balanceKeyboard(u.PixKey != ""))
	case err != nil:
		return err
	}

	if u.PixKey == "" {
		if err := h.machine.Enter(ctx, conversation.RootScope, userID, models.StateWaitingPixKey); err != nil {
			return err
		}
		return h.reply(chatID, "🔑 Para sacar, envie sua chave PIX (CPF, CNPJ, e-mail, telefone ou chave aleatória).", cancelKeyboard())
	}

	w, err := h.deps.Wallet.Withdraw(ctx, userID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("✅ Saque de <b>%s</b> solicitado com sucesso! O valor será creditado em sua chave PIX.", utils.FormatBRL(w.Amount))
	if w.Status == models.WithdrawalPaid {
		text = fmt.Sprintf("✅ Saque de <b>%s</b> realizado com sucesso!", utils.FormatBRL(w.Amount))
	}
	return h.reply(chatID, text, transport.Keyboard{backRow(cbMenu)})
}

func (h *Handlers) sendReferral(ctx context.Context, chatID, userID int64) error {
	refs, err := h.deps.Wallet.Referrals(ctx, userID)
	if err != nil {
		return err
	}
	eligible := 0
	for _, r := range refs {
		if r.Eligible {
			eligible++
		}
	}
	opts := h.deps.Wallet.Options()
	text := fmt.Sprintf("👥 <b>CONVIDE E GANHE</b>\n\n<b>Regras:</b>\n"+
		"• Você só ganha se o usuário que você convidar fizer no mínimo %d vendas de %s durante %d dias\n"+
		"• Após %d dias, você perde o vínculo com o cliente indicado\n\n"+
		"<b>Suas estatísticas:</b>\n• Usuários indicados: %d\n• Indicados qualificados: %d\n\n"+
		"Seu link de indicação:\n<code>%s</code>",
		opts.ReferralMinSales, utils.FormatBRL(opts.ReferralMinAmount), int(opts.ReferralExpiry.Hours()/24),
		int(opts.ReferralExpiry.Hours()/24), len(refs), eligible, utils.ReferralLink(h.cfg.Username, userID))
	return h.reply(chatID, text, transport.Keyboard{backRow(cbMenu)})
}

func (h *Handlers) sendVIP(ctx context.Context, chatID, userID int64) error {
	u, err := h.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.IsAdminVIP && u.AdminVIPExpiry != nil {
		return h.reply(chatID, fmt.Sprintf("👑 Você é Admin VIP até %s.", u.AdminVIPExpiry.Format("02/01/2006")), vipKeyboard(true))
	}
	text := "👑 <b>SEJA ADMIN VIP</b>\n\n<b>O que você recebe ao assinar?</b>\n" +
		"• Recebe comissões de todas as fontes de vendas\n• Comissões sobre as vendas de seus indicados\n\n"
	if u.AdminVIPUsed {
		text += "Seu período gratuito já foi utilizado."
	} else {
		text += fmt.Sprintf("🎁 <b>SEUS PRIMEIROS %d DIAS SÃO GRÁTIS!</b>", int(h.deps.Wallet.Options().VIPTrial.Hours()/24))
	}
	return h.reply(chatID, text, vipKeyboard(u.AdminVIPUsed))
}

func howItWorks(opts wallet.Options) string {
	return fmt.Sprintf("ℹ️ <b>COMO FUNCIONA</b>\n\nNosso sistema permite que você crie facilmente um bot para gerenciar grupos VIP com pagamentos integrados.\n\n"+
		"💰 <b>SOBRE PAGAMENTOS:</b>\n• O sistema utiliza PushinPay para processamento de PIX\n• Cada bot usa o seu próprio token PushinPay\n\n"+
		"🏆 <b>COMISSÕES:</b>\n• Você recebe comissão em cada venda gerada\n• Saque mínimo de %s a cada %d dias\n\n"+
		"👥 <b>PROGRAMA DE INDICAÇÃO:</b>\n• Indique amigos e ganhe com os indicados ativos",
		utils.FormatBRL(opts.MinWithdrawal), int(opts.Interval.Hours()/24))
}
