package domain

import "strings"

// SubscriptionPlan тарифный план подписки
type SubscriptionPlan string

const (
	PlanFree SubscriptionPlan = "FREE"
	PlanPro  SubscriptionPlan = "PRO"
)

// BillingCycle период оплаты подписки
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "MONTHLY"
	BillingCycleYearly  BillingCycle = "YEARLY"
)

// planPrices таблица цен план×период в минимальных единицах валюты.
// Сумма платежа фиксируется при создании заказа и больше не меняется.
var planPrices = map[SubscriptionPlan]map[BillingCycle]int64{
	PlanFree: {
		BillingCycleMonthly: 0,
		BillingCycleYearly:  0,
	},
	PlanPro: {
		BillingCycleMonthly: 9900,
		BillingCycleYearly:  99000,
	},
}

// ParseSubscriptionPlan разбирает план из строки запроса
func ParseSubscriptionPlan(s string) (SubscriptionPlan, error) {
	switch SubscriptionPlan(strings.ToUpper(s)) {
	case PlanFree:
		return PlanFree, nil
	case PlanPro:
		return PlanPro, nil
	default:
		return "", ErrInvalidPlan
	}
}

// ParseBillingCycle разбирает период оплаты из строки запроса
func ParseBillingCycle(s string) (BillingCycle, error) {
	switch BillingCycle(strings.ToUpper(s)) {
	case BillingCycleMonthly:
		return BillingCycleMonthly, nil
	case BillingCycleYearly:
		return BillingCycleYearly, nil
	default:
		return "", ErrInvalidBillingCycle
	}
}

// Purchasable сообщает, можно ли купить план
func (p SubscriptionPlan) Purchasable() bool {
	return p != PlanFree
}

// DisplayName возвращает читаемое название плана
func (p SubscriptionPlan) DisplayName() string {
	switch p {
	case PlanPro:
		return "Pro"
	default:
		return "Free"
	}
}

// Price возвращает цену плана для заданного периода
func (p SubscriptionPlan) Price(cycle BillingCycle) int64 {
	return planPrices[p][cycle]
}

// Months возвращает длительность периода в месяцах
func (c BillingCycle) Months() int {
	if c == BillingCycleYearly {
		return 12
	}
	return 1
}

// DisplayName возвращает читаемое название периода
func (c BillingCycle) DisplayName() string {
	if c == BillingCycleYearly {
		return "yearly"
	}
	return "monthly"
}

// OrderName строит человекочитаемое название заказа
func OrderName(plan SubscriptionPlan, cycle BillingCycle) string {
	return plan.DisplayName() + " " + cycle.DisplayName() + " subscription"
}

// PlanInfo описание плана для выдачи наружу
type PlanInfo struct {
	Plan         SubscriptionPlan `json:"plan"`
	DisplayName  string           `json:"display_name"`
	MonthlyPrice int64            `json:"monthly_price"`
	YearlyPrice  int64            `json:"yearly_price"`
	Purchasable  bool             `json:"purchasable"`
}

// Plans возвращает описание всех тарифных планов
func Plans() []PlanInfo {
	plans := []SubscriptionPlan{PlanFree, PlanPro}

	infos := make([]PlanInfo, 0, len(plans))
	for _, p := range plans {
		infos = append(infos, PlanInfo{
			Plan:         p,
			DisplayName:  p.DisplayName(),
			MonthlyPrice: p.Price(BillingCycleMonthly),
			YearlyPrice:  p.Price(BillingCycleYearly),
			Purchasable:  p.Purchasable(),
		})
	}
	return infos
}
