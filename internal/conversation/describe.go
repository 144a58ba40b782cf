package conversation

import (
	"errors"

	"zenyx/internal/models"
)

// Describe turns a component error into the short message shown to the user.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrDuplicateToken):
		return "❌ Este token já está em uso por outro bot."
	case errors.Is(err, models.ErrExpired):
		return "⌛ Código expirado. Gere um novo código no painel do bot."
	case errors.Is(err, models.ErrAlreadyExists):
		return "⚠️ Isso já foi registrado."
	case errors.Is(err, models.ErrInsufficientBalance):
		return "💸 Saldo insuficiente para saque."
	case errors.Is(err, models.ErrWithdrawalTooSoon):
		return "⏳ Você ainda não pode sacar. Aguarde o intervalo entre saques."
	case errors.Is(err, models.ErrLimitReached):
		return "🚫 Limite atingido."
	case errors.Is(err, models.ErrUnauthorized):
		return "🔒 Você não tem permissão para isso."
	case errors.Is(err, models.ErrNotFound):
		return "🔎 Não encontrado."
	case errors.Is(err, models.ErrInvalidInput):
		return "❌ Dados inválidos. Verifique e tente novamente."
	case errors.Is(err, models.ErrTransportUnavailable):
		return "⚠️ Serviço indisponível no momento. Tente novamente em instantes."
	}
	return "⚠️ Ocorreu um erro. Tente novamente."
}
