package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"zenyx/internal/pkg/utils"
)

// Stats is a platform-wide snapshot for administrators.
type Stats struct {
	Users        int
	PayingUsers  int
	Bots         int
	ActiveBots   int
	RunningBots  int
	Sales        int
	Revenue      decimal.Decimal
	Commission   decimal.Decimal
	PendingCount int
}

// CollectStats aggregates users, bots and payments.
func CollectStats(ctx context.Context, deps Deps) (*Stats, error) {
	users, err := deps.Users.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	bots, err := deps.Bots.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := deps.Payments.FindPending(ctx)
	if err != nil {
		return nil, err
	}

	s := &Stats{
		Users:        len(users),
		Bots:         len(bots),
		RunningBots:  len(deps.Fleet.ListRunning()),
		Revenue:      decimal.Zero,
		Commission:   decimal.Zero,
		PendingCount: len(pending),
	}
	for _, u := range users {
		if u.TotalSales > 0 {
			s.PayingUsers++
		}
		s.Sales += u.TotalSales
		s.Revenue = s.Revenue.Add(u.TotalRevenue)
		for _, sale := range u.Sales {
			s.Commission = s.Commission.Add(sale.Commission)
		}
	}
	for _, b := range bots {
		if b.Active {
			s.ActiveBots++
		}
	}
	return s, nil
}

func (h *Handlers) adminAction(ctx context.Context, chatID int64, data string) error {
	switch data {
	case cbAdminBots:
		running := h.deps.Fleet.ListRunning()
		if len(running) == 0 {
			return h.reply(chatID, "🤖 Nenhum bot em execução.", adminKeyboard())
		}
		var b strings.Builder
		fmt.Fprintf(&b, "🤖 <b>BOTS EM EXECUÇÃO</b> (%d)\n", len(running))
		for _, token := range running {
			cfg, err := h.deps.Bots.FindByToken(ctx, token)
			if err != nil {
				fmt.Fprintf(&b, "\n• %s", utils.MaskToken(token))
				continue
			}
			fmt.Fprintf(&b, "\n• @%s (dono %d)", cfg.Username, cfg.OwnerID)
		}
		return h.reply(chatID, b.String(), adminKeyboard())

	case cbAdminPending:
		pending, err := h.deps.Payments.FindPending(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return h.reply(chatID, "✅ Nenhum pagamento pendente.", adminKeyboard())
		}
		var b strings.Builder
		fmt.Fprintf(&b, "⏳ <b>PAGAMENTOS PENDENTES</b> (%d)\n", len(pending))
		for i, p := range pending {
			if i == 20 {
				fmt.Fprintf(&b, "\n… e mais %d", len(pending)-i)
				break
			}
			fmt.Fprintf(&b, "\n• <code>%s</code> %s %s (%s)", p.ID, html.EscapeString(p.PlanName),
				utils.FormatBRL(p.Price), p.CreatedAt.Format("02/01 15:04"))
		}
		return h.reply(chatID, b.String(), adminKeyboard())
	}

	s, err := CollectStats(ctx, h.deps)
	if err != nil {
		return err
	}
	avg := decimal.Zero
	if s.Sales > 0 {
		avg = s.Revenue.Div(decimal.NewFromInt(int64(s.Sales))).Round(2)
	}
	text := fmt.Sprintf("👨‍💼 <b>MENU ADMINISTRATIVO</b>\n\n"+
		"👥 Usuários: <code>%d</code> (pagantes: %d)\n"+
		"🤖 Bots: <code>%d</code> (ativos: %d, online: %d)\n"+
		"🧾 Vendas: <code>%d</code>\n"+
		"💵 Faturamento: <code>%s</code>\n"+
		"🎯 Ticket médio: <code>%s</code>\n"+
		"💸 Comissões creditadas: <code>%s</code>\n"+
		"⏳ Pagamentos pendentes: <code>%d</code>\n"+
		"🕒 Relatório: <code>%s</code>",
		s.Users, s.PayingUsers, s.Bots, s.ActiveBots, s.RunningBots, s.Sales,
		utils.FormatBRL(s.Revenue), utils.FormatBRL(avg), utils.FormatBRL(s.Commission),
		s.PendingCount, time.Now().Format("02/01/2006 15:04:05"))
	return h.reply(chatID, text, adminKeyboard())
}
