// Package childbot holds the update handlers of the bots users create:
// the owner's configuration menu and the buyer's purchase flow.
package childbot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"zenyx/internal/checkout"
	"zenyx/internal/conversation"
	"zenyx/internal/linking"
	"zenyx/internal/models"
	"zenyx/internal/payment"
	"zenyx/internal/pkg/utils"
	"zenyx/internal/repository"
	"zenyx/internal/transport"
)

// Deps are shared by every child bot.
type Deps struct {
	Bots     *repository.BotRepository
	States   *repository.StateRepository
	Checkout *checkout.Service
	Linking  *linking.Service
	APIURL   string
	Logger   *zap.Logger
}

// Sender identifies who triggered an update.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
}

// Handlers is the handler table of one child bot.
type Handlers struct {
	token   string
	scope   string
	deps    Deps
	msgr    transport.Messenger
	machine *conversation.Machine
	logger  *zap.Logger
}

// NewHandlers binds the handler table to cfg. Configuration is re-read from
// the store on every update, so edits apply without a restart.
func NewHandlers(cfg *models.BotConfig, deps Deps, msgr transport.Messenger) *Handlers {
	h := &Handlers{
		token:  cfg.Token,
		scope:  "bot" + strconv.FormatInt(cfg.BotID, 10),
		deps:   deps,
		msgr:   msgr,
		logger: deps.Logger.Named("childbot").With(zap.String("bot", cfg.Username)),
	}
	h.machine = conversation.New(deps.States, h.logger).
		On(models.StateWaitingPushinPayToken, h.onGatewayToken).
		On(models.StateWaitingWelcomeText, h.onWelcomeText).
		On(models.StateWaitingMedia, h.onWelcomeMedia).
		On(models.StateWaitingPlanInput, h.onPlanInput).
		OnCode(h.onPrivateCode).
		Fallback(h.onIdle)
	return h
}

func (h *Handlers) config(ctx context.Context) (*models.BotConfig, error) {
	return h.deps.Bots.FindByToken(ctx, h.token)
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
	return h.reply(chatID, conversation.Describe(err), nil)
}

// ── /start and /cancel ────────────────────────────────────────────────

// Start greets the owner with the config menu and everyone else with the
// welcome content.
func (h *Handlers) Start(ctx context.Context, from Sender, chatID int64) error {
	cfg, err := h.config(ctx)
	if err != nil {
		return h.fail(chatID, err)
	}
	if err := h.machine.Reset(ctx, h.scope, from.ID); err != nil {
		h.logger.Warn("Failed to reset state", zap.Int64("user_id", from.ID), zap.Error(err))
	}
	if from.ID == cfg.OwnerID {
		return h.sendConfigMenu(chatID, cfg, from)
	}
	return h.sendWelcome(chatID, cfg, from)
}

// Cancel discards the step in progress.
func (h *Handlers) Cancel(ctx context.Context, from Sender, chatID int64) error {
	if err := h.machine.Reset(ctx, h.scope, from.ID); err != nil {
		return h.fail(chatID, err)
	}
	return h.reply(chatID, "❌ Operação cancelada.", nil)
}

func (h *Handlers) sendConfigMenu(chatID int64, cfg *models.BotConfig, from Sender) error {
	check := func(ok bool) string {
		if ok {
			return "✅"
		}
		return "❌"
	}
	name := from.Username
	if name == "" {
		name = from.FirstName
	}
	text := fmt.Sprintf("👋🏻 Olá %s e bem-vindo ao @%s!\n\n🔆 Você é o administrador deste bot!\n\n"+
		"⚙️ <b>CONFIGURAR SEU BOT</b>\n\n"+
		"%s Mensagem de boas-vindas\n%s Token PushinPay\n%s Planos (%d)\n%s Grupos/canais (%d)",
		html.EscapeString(name), html.EscapeString(cfgUsername(cfg)),
		check(cfg.Welcome.Text != ""), check(cfg.GatewayToken != ""),
		check(len(cfg.Plans) > 0), len(cfg.Plans),
		check(len(cfg.LinkedGroups) > 0), len(cfg.LinkedGroups),
	)
	return h.reply(chatID, text, configKeyboard())
}

func cfgUsername(cfg *models.BotConfig) string {
	if cfg.Username != "" {
		return cfg.Username
	}
	return "bot"
}

// renderWelcome fills the {firstname}, {username} and {id} placeholders.
func renderWelcome(text string, from Sender) string {
	r := strings.NewReplacer(
		"{firstname}", from.FirstName,
		"{username}", from.Username,
		"{id}", strconv.FormatInt(from.ID, 10),
	)
	return html.EscapeString(r.Replace(text))
}

func (h *Handlers) sendWelcome(chatID int64, cfg *models.BotConfig, from Sender) error {
	if !cfg.Ready() {
		return h.reply(chatID, "🚧 Este bot ainda não foi configurado pelo administrador.", nil)
	}
	text := renderWelcome(cfg.Welcome.Text, from)
	kb := planKeyboard(cfg.Plans)
	if cfg.Welcome.Media != nil {
		err := h.msgr.SendMedia(chatID, *cfg.Welcome.Media, text, kb)
		if err == nil {
			return nil
		}
		h.logger.Warn("Welcome media failed, sending text", zap.Error(err))
	}
	return h.reply(chatID, text, kb)
}

// ── Text and media ────────────────────────────────────────────────────

// Message handles a private text or media message.
func (h *Handlers) Message(ctx context.Context, from Sender, chatID int64, text string, media *models.Media) error {
	err := h.machine.Dispatch(ctx, conversation.Message{
		Scope:  h.scope,
		UserID: from.ID,
		ChatID: chatID,
		Text:   text,
		Media:  media,
	})
	if err != nil {
		return h.fail(chatID, err)
	}
	return nil
}

// ChatText handles text posted in a group or channel. Only linking codes
// are acted upon there.
func (h *Handlers) ChatText(ctx context.Context, chatID int64, text string) error {
	code := strings.TrimSpace(text)
	if !utils.IsLinkingCodeShape(code) {
		return nil
	}
	group, err := h.deps.Linking.Redeem(ctx, code, chatID)
	switch {
	case err == nil:
		return h.reply(chatID, fmt.Sprintf("✅ <b>%s</b> vinculado com sucesso!", html.EscapeString(group.Title)), nil)
	case errors.Is(err, models.ErrNotFound):
		return nil
	case errors.Is(err, models.ErrExpired):
		return h.reply(chatID, "❌ Código expirado.", nil)
	case errors.Is(err, models.ErrUnauthorized):
		return h.reply(chatID, "❌ O bot precisa ser administrador deste grupo/canal para vinculá-lo.", nil)
	case errors.Is(err, models.ErrAlreadyExists):
		return h.reply(chatID, "⚠️ Este grupo/canal já está vinculado a este bot.", nil)
	}
	h.logger.Warn("Code redemption failed", zap.Int64("chat_id", chatID), zap.Error(err))
	return h.reply(chatID, conversation.Describe(err), nil)
}

// onPrivateCode answers codes sent in a private chat, where they cannot be redeemed.
func (h *Handlers) onPrivateCode(ctx context.Context, msg conversation.Message, code string) error {
	if _, err := h.deps.Linking.Lookup(ctx, code); err != nil {
		return err
	}
	return h.reply(msg.ChatID, "ℹ️ Envie este código dentro do grupo ou canal que deseja vincular, com o bot já como administrador.", nil)
}

func (h *Handlers) onIdle(ctx context.Context, msg conversation.Message) error {
	cfg, err := h.config(ctx)
	if err != nil {
		return err
	}
	return h.sendWelcome(msg.ChatID, cfg, Sender{ID: msg.UserID})
}

func (h *Handlers) ownerConfig(ctx context.Context, userID int64) (*models.BotConfig, error) {
	cfg, err := h.config(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.OwnerID != userID {
		return nil, models.ErrUnauthorized
	}
	return cfg, nil
}

func (h *Handlers) updateOwned(ctx context.Context, userID int64, fn func(*models.BotConfig) error) (*models.BotConfig, error) {
	return h.deps.Bots.Update(ctx, h.token, func(c *models.BotConfig) error {
		if c.OwnerID != userID {
			return models.ErrUnauthorized
		}
		return fn(c)
	})
}

func (h *Handlers) onGatewayToken(ctx context.Context, msg conversation.Message) error {
	token := strings.TrimSpace(msg.Text)
	if !utils.IsValidPushinPayToken(token) {
		return h.reply(msg.ChatID, "❌ Token PushinPay inválido. Verifique e tente novamente.", cancelKeyboard(cbMenu))
	}
	cfg, err := h.updateOwned(ctx, msg.UserID, func(c *models.BotConfig) error {
		c.GatewayToken = token
		return nil
	})
	if err != nil {
		return err
	}
	if err := h.machine.Reset(ctx, h.scope, msg.UserID); err != nil {
		return err
	}
	_ = h.reply(msg.ChatID, "✅ <b>TOKEN CONFIGURADO!</b>\n\nSua integração com PushinPay foi configurada com sucesso.", nil)
	return h.sendConfigMenu(msg.ChatID, cfg, Sender{ID: msg.UserID})
}

func (h *Handlers) onWelcomeText(ctx context.Context, msg conversation.Message) error {
	text := strings.TrimSpace(msg.Text)
	if msg.IsMedia() || text == "" {
		return h.reply(msg.ChatID, "❌ Envie o texto da mensagem de boas-vindas.", cancelKeyboard(cbMessage))
	}
	cfg, err := h.updateOwned(ctx, msg.UserID, func(c *models.BotConfig) error {
		c.Welcome.Text = text
		return nil
	})
	if err != nil {
		return err
	}
	if err := h.machine.Reset(ctx, h.scope, msg.UserID); err != nil {
		return err
	}
	return h.reply(msg.ChatID, "✅ Texto salvo com sucesso!", messageKeyboard(cfg))
}

func (h *Handlers) onWelcomeMedia(ctx context.Context, msg conversation.Message) error {
	if !msg.IsMedia() {
		return h.reply(msg.ChatID, "❌ Envie uma foto, vídeo, áudio, documento ou GIF.", cancelKeyboard(cbMessage))
	}
	media := *msg.Media
	cfg, err := h.updateOwned(ctx, msg.UserID, func(c *models.BotConfig) error {
		c.Welcome.Media = &media
		return nil
	})
	if err != nil {
		return err
	}
	if err := h.machine.Reset(ctx, h.scope, msg.UserID); err != nil {
		return err
	}
	return h.reply(msg.ChatID, "✅ Mídia salva com sucesso!", messageKeyboard(cfg))
}

func (h *Handlers) onPlanInput(ctx context.Context, msg conversation.Message) error {
	plan, err := utils.ParsePlanInput(msg.Text)
	if err != nil {
		return h.reply(msg.ChatID,
			"❌ Formato inválido. Use:\n\n<code>Nome do Plano | Valor | Duração</code>\n\nExemplo:\n<code>Plano Mensal | 49.90 | 30 dias</code>",
			cancelKeyboard(cbPlans))
	}
	plan.ID = utils.GeneratePlanID()
	cfg, err := h.updateOwned(ctx, msg.UserID, func(c *models.BotConfig) error {
		c.Plans = append(c.Plans, *plan)
		return nil
	})
	if err != nil {
		return err
	}
	if err := h.machine.Reset(ctx, h.scope, msg.UserID); err != nil {
		return err
	}
	text := fmt.Sprintf("✅ Plano criado com sucesso!\n\n<b>%s</b>\n%s - %s",
		html.EscapeString(plan.Name), utils.FormatBRL(plan.Price), plan.DurationLabel())
	return h.reply(msg.ChatID, text, plansKeyboard(cfg))
}

// ── Callbacks ─────────────────────────────────────────────────────────

// Callback routes a button press.
func (h *Handlers) Callback(ctx context.Context, from Sender, chatID int64, data string) error {
	switch {
	case strings.HasPrefix(data, cbBuyPrefix):
		return h.buy(ctx, from, chatID, strings.TrimPrefix(data, cbBuyPrefix))
	case strings.HasPrefix(data, cbCheck):
		return h.check(ctx, from, chatID, strings.TrimPrefix(data, cbCheck))
	case strings.HasPrefix(data, "cfg:"):
		cfg, err := h.ownerConfig(ctx, from.ID)
		if err != nil {
			return h.fail(chatID, err)
		}
		if err := h.configAction(ctx, cfg, from, chatID, data); err != nil {
			return h.fail(chatID, err)
		}
		return nil
	}
	h.logger.Debug("Unknown callback", zap.String("data", data))
	return nil
}

func (h *Handlers) configAction(ctx context.Context, cfg *models.BotConfig, from Sender, chatID int64, data string) error {
	switch {
	case data == cbMenu:
		return h.sendConfigMenu(chatID, cfg, from)

	case data == cbMessage:
		return h.reply(chatID, "📝 <b>CONFIGURAR MENSAGEM</b>\n\nEscolha o que deseja configurar:", messageKeyboard(cfg))

	case data == cbText:
		if err := h.machine.Enter(ctx, h.scope, from.ID, models.StateWaitingWelcomeText); err != nil {
			return err
		}
		return h.reply(chatID, "📝 <b>CONFIGURAR TEXTO</b>\n\nEnvie o texto que será exibido na mensagem de boas-vindas.\n\n"+
			"Você pode usar as variáveis:\n• <code>{firstname}</code> - Primeiro nome\n• <code>{username}</code> - Username\n• <code>{id}</code> - ID do usuário",
			cancelKeyboard(cbMessage))

	case data == cbMedia:
		if err := h.machine.Enter(ctx, h.scope, from.ID, models.StateWaitingMedia); err != nil {
			return err
		}
		return h.reply(chatID, "🖼️ <b>CONFIGURAR MÍDIA</b>\n\nEnvie a mídia que será exibida na mensagem inicial.", cancelKeyboard(cbMessage))

	case data == cbMediaDel:
		cfg, err := h.updateOwned(ctx, from.ID, func(c *models.BotConfig) error {
			c.Welcome.Media = nil
			return nil
		})
		if err != nil {
			return err
		}
		return h.reply(chatID, "🗑️ Mídia removida.", messageKeyboard(cfg))

	case data == cbPlans:
		return h.reply(chatID, plansText(cfg), plansKeyboard(cfg))

	case data == cbPlanAdd:
		if err := h.machine.Enter(ctx, h.scope, from.ID, models.StateWaitingPlanInput); err != nil {
			return err
		}
		return h.reply(chatID, "💰 <b>CRIAR PLANOS</b>\n\nEnvie o nome do plano, valor e duração no formato:\n\n"+
			"<code>Nome do Plano | Valor | Duração</code>\n\nExemplo:\n<code>Plano Mensal | 49.90 | 30 dias</code>",
			cancelKeyboard(cbPlans))

	case strings.HasPrefix(data, cbPlanDel):
		id := strings.TrimPrefix(data, cbPlanDel)
		cfg, err := h.updateOwned(ctx, from.ID, func(c *models.BotConfig) error {
			for i := range c.Plans {
				if c.Plans[i].ID == id {
					c.Plans = append(c.Plans[:i], c.Plans[i+1:]...)
					return nil
				}
			}
			return models.ErrNotFound
		})
		if err != nil {
			return err
		}
		return h.reply(chatID, plansText(cfg), plansKeyboard(cfg))

	case data == cbGateway:
		if err := h.machine.Enter(ctx, h.scope, from.ID, models.StateWaitingPushinPayToken); err != nil {
			return err
		}
		current := "nenhum"
		if cfg.GatewayToken != "" {
			current = utils.MaskToken(cfg.GatewayToken)
		}
		return h.reply(chatID, fmt.Sprintf("💰 <b>CONFIGURAR PUSHINPAY</b>\n\nToken atual: <code>%s</code>\n\nCole aqui seu token gerado na PushinPay.", current),
			cancelKeyboard(cbMenu))

	case data == cbGroups:
		return h.reply(chatID, groupsText(cfg), groupsKeyboard(cfg))

	case data == cbGroupAdd:
		code, err := h.deps.Linking.RequestCode(ctx, h.token, from.ID)
		if err != nil {
			return err
		}
		return h.reply(chatID, fmt.Sprintf("🔑 <b>CÓDIGO GERADO!</b>\n\nUse o código <code>%s</code> para associar um grupo ou canal a este bot.\n\n"+
			"<b>Instruções:</b>\n1. Adicione o bot ao grupo/canal como administrador\n2. Envie apenas o código no grupo/canal\n"+
			"3. O bot irá detectar automaticamente e associar o grupo/canal\n\nEste código expira em 1 hora.", code.Code), nil)

	case strings.HasPrefix(data, cbGroupDel):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, cbGroupDel), 10, 64)
		if err != nil {
			return models.ErrInvalidInput
		}
		if err := h.deps.Linking.Unlink(ctx, h.token, from.ID, id); err != nil {
			return err
		}
		cfg, err := h.config(ctx)
		if err != nil {
			return err
		}
		return h.reply(chatID, groupsText(cfg), groupsKeyboard(cfg))

	case data == cbPreview:
		if cfg.Welcome.Text == "" {
			return h.reply(chatID, "⚠️ Configure o texto de boas-vindas primeiro.", messageKeyboard(cfg))
		}
		text := renderWelcome(cfg.Welcome.Text, from)
		kb := planKeyboard(cfg.Plans)
		if cfg.Welcome.Media != nil {
			return h.msgr.SendMedia(chatID, *cfg.Welcome.Media, text, kb)
		}
		return h.reply(chatID, text, kb)

	case strings.HasPrefix(data, cbCancel):
		if err := h.machine.Reset(ctx, h.scope, from.ID); err != nil {
			return err
		}
		next := strings.TrimPrefix(strings.TrimPrefix(data, cbCancel), ":")
		if next == "" {
			next = cbMenu
		}
		return h.configAction(ctx, cfg, from, chatID, next)
	}
	h.logger.Debug("Unknown config action", zap.String("data", data))
	return nil
}

func plansText(cfg *models.BotConfig) string {
	if len(cfg.Plans) == 0 {
		return "💰 <b>PLANOS</b>\n\nNenhum plano criado ainda."
	}
	var b strings.Builder
	b.WriteString("💰 <b>PLANOS</b>\n\nToque em um plano para removê-lo.\n")
	for _, p := range cfg.Plans {
		fmt.Fprintf(&b, "\n• %s - %s (%s)", html.EscapeString(p.Name), utils.FormatBRL(p.Price), p.DurationLabel())
	}
	return b.String()
}

func groupsText(cfg *models.BotConfig) string {
	if len(cfg.LinkedGroups) == 0 {
		return "👥 <b>CONFIGURAR CANAL/GRUPO</b>\n\nNenhum grupo ou canal configurado.\n\n" +
			"1. Adicione este bot ao grupo/canal como administrador\n2. Dê permissão para convidar usuários\n" +
			"3. Clique no botão abaixo para receber um código\n4. Envie o código no grupo/canal"
	}
	var b strings.Builder
	b.WriteString("👥 <b>GRUPOS E CANAIS VINCULADOS</b>\n")
	for _, g := range cfg.LinkedGroups {
		fmt.Fprintf(&b, "\n• %s", html.EscapeString(g.Title))
		if g.Username != "" {
			fmt.Fprintf(&b, " (@%s)", g.Username)
		}
	}
	return b.String()
}

// ── Buyer flow ────────────────────────────────────────────────────────

func (h *Handlers) buy(ctx context.Context, from Sender, chatID int64, planID string) error {
	p, charge, err := h.deps.Checkout.CreatePayment(ctx, h.token, from.ID, planID)
	if err != nil {
		h.logger.Warn("Charge failed", zap.Int64("buyer_id", from.ID), zap.String("plan_id", planID), zap.Error(err))
		if errors.Is(err, models.ErrTransportUnavailable) || errors.Is(err, models.ErrUnauthorized) {
			return h.reply(chatID, "❌ Não foi possível gerar o PIX agora. Tente novamente em instantes.", nil)
		}
		return h.fail(chatID, err)
	}

	caption := fmt.Sprintf("💳 <b>%s</b>\nValor: %s\n\nEscaneie o QR Code ou use o código PIX abaixo.",
		html.EscapeString(p.PlanName), utils.FormatBRL(p.Price))
	if png, err := payment.QRCodePNG(charge); err == nil {
		if err := h.msgr.SendPhotoBytes(chatID, png, caption, nil); err != nil {
			h.logger.Warn("Failed to send QR code", zap.Error(err))
		}
	} else {
		h.logger.Warn("QR code unavailable", zap.String("payment_id", p.ID), zap.Error(err))
		_ = h.reply(chatID, caption, nil)
	}

	text := fmt.Sprintf("📋 <b>PIX Copia e Cola</b>\n\n<code>%s</code>\n\n"+
		"Após pagar, o acesso é liberado automaticamente. Se preferir, toque em verificar.",
		html.EscapeString(charge.QRCode))
	return h.reply(chatID, text, checkKeyboard(p.ID))
}

func (h *Handlers) check(ctx context.Context, from Sender, chatID int64, paymentID string) error {
	outcome, err := h.deps.Checkout.Check(ctx, from.ID, paymentID)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrTransportUnavailable):
		return h.reply(chatID, "⏳ Pagamento ainda não confirmado. Tente novamente em alguns instantes.", checkKeyboard(paymentID))
	default:
		return h.fail(chatID, err)
	}

	switch outcome {
	case checkout.Pending:
		return h.reply(chatID, "⏳ Pagamento ainda não confirmado. Tente novamente em alguns instantes.", checkKeyboard(paymentID))
	case checkout.AlreadyPaid:
		return h.reply(chatID, "✅ Este pagamento já foi confirmado. Os links de acesso foram enviados acima.", nil)
	}
	return nil
}
