package bootstrap

import (
	"go.uber.org/zap"

	"zenyx/internal/checkout"
	"zenyx/internal/childbot"
	"zenyx/internal/config"
	"zenyx/internal/linking"
	"zenyx/internal/payment"
	"zenyx/internal/registry"
	"zenyx/internal/repository"
	"zenyx/internal/store"
	"zenyx/internal/transport"
	"zenyx/internal/wallet"
)

// Services is the wired domain layer shared by the entry points.
type Services struct {
	Users    *repository.UserRepository
	Bots     *repository.BotRepository
	Codes    *repository.CodeRepository
	Payments *repository.PaymentRepository
	States   *repository.StateRepository

	Registry *registry.Registry
	Checkout *checkout.Service
	Linking  *linking.Service
	Wallet   *wallet.Service
}

// messengers breaks the construction cycle between the registry and the
// services that send through child bots.
type messengers struct {
	reg *registry.Registry
}

func (m *messengers) Messenger(token string) (transport.Messenger, error) {
	return m.reg.Messenger(token)
}

// NewServices builds repositories, services and the child bot registry over kv.
func NewServices(cfg *config.Config, kv store.KV, logger *zap.Logger) *Services {
	keys := repository.NewKeys(cfg.Store.Prefix)
	s := &Services{
		Users:    repository.NewUserRepository(kv, keys),
		Bots:     repository.NewBotRepository(kv, keys),
		Codes:    repository.NewCodeRepository(kv, keys),
		Payments: repository.NewPaymentRepository(kv, keys),
		States:   repository.NewStateRepository(kv, keys),
	}
	src := &messengers{}

	s.Checkout = checkout.NewService(s.Payments, s.Bots, s.Users,
		payment.PushinPayFactory(cfg.PushinPay.BaseURL), src, CheckoutOptions(cfg), logger)
	s.Linking = linking.NewService(s.Codes, s.Bots, src, cfg.Rules.LinkCodeTTL, cfg.Rules.MaxGroupsPerBot, logger)

	var payouts payment.Gateway
	if cfg.PushinPay.Token != "" {
		payouts = payment.NewPushinPayGateway(cfg.PushinPay.BaseURL, cfg.PushinPay.Token)
	} else {
		logger.Warn("PUSHINPAY_TOKEN not set; withdrawals will be paid manually")
	}
	s.Wallet = wallet.NewService(s.Users, payouts, WalletOptions(cfg), logger)

	launcher := childbot.NewLauncher(childbot.Deps{
		Bots:     s.Bots,
		States:   s.States,
		Checkout: s.Checkout,
		Linking:  s.Linking,
		APIURL:   cfg.Bot.APIURL,
		Logger:   logger.Named("childbot"),
	})
	offline := func(token string) (transport.Messenger, error) {
		m, err := transport.NewOffline(token, cfg.Bot.APIURL)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	s.Registry = registry.New(s.Bots, s.Users,
		registry.TelegramIdentifier{BaseURL: cfg.Bot.APIURL},
		launcher, offline,
		registry.Options{MaxBotsPerUser: cfg.Rules.MaxBotsPerUser},
		logger)
	src.reg = s.Registry
	return s
}

// CheckoutOptions maps the platform rules onto the checkout workflow.
func CheckoutOptions(cfg *config.Config) checkout.Options {
	opts := checkout.DefaultOptions()
	opts.CommissionRate = cfg.Rules.CommissionRate
	if cfg.Rules.PaymentPoll > 0 {
		opts.PollInterval = cfg.Rules.PaymentPoll
	}
	if cfg.Rules.PaymentAttempts > 0 {
		opts.PollAttempts = cfg.Rules.PaymentAttempts
	}
	if cfg.Rules.InviteLinkTTL > 0 {
		opts.InviteTTL = cfg.Rules.InviteLinkTTL
	}
	opts.PublicURL = cfg.Server.PublicURL
	return opts
}

// WalletOptions maps the platform rules onto the wallet.
func WalletOptions(cfg *config.Config) wallet.Options {
	opts := wallet.DefaultOptions()
	opts.MinWithdrawal = cfg.Rules.MinWithdrawal
	if cfg.Rules.WithdrawalInterval > 0 {
		opts.Interval = cfg.Rules.WithdrawalInterval
	}
	if cfg.Rules.AdminVIPTrial > 0 {
		opts.VIPTrial = cfg.Rules.AdminVIPTrial
	}
	if cfg.Rules.ReferralExpiry > 0 {
		opts.ReferralExpiry = cfg.Rules.ReferralExpiry
	}
	if cfg.Rules.ReferralMinSales > 0 {
		opts.ReferralMinSales = cfg.Rules.ReferralMinSales
	}
	opts.ReferralMinAmount = cfg.Rules.ReferralMinAmount
	opts.AdminIDs = cfg.Bot.AdminIDs
	return opts
}
