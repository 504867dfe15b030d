package entity

// TierClass is the top-level partition of the indexed credential schema.
type TierClass string

const (
	ClassFree TierClass = "free"
	ClassPaid TierClass = "paid"
)

// Plan is the normalized plan identifier stored in the `plan`/`type` fields.
type Plan string

const (
	PlanMonth      Plan = "month"
	PlanThreeMonth Plan = "3month"
	PlanSixMonth   Plan = "6month"
	PlanLifetime   Plan = "lifetime"
)

// Tier is the human-readable tier label stored in the `tier` field.
type Tier string

const (
	TierFree         Tier = "Free"
	TierPaidMonth    Tier = "Paid Month"
	TierPaid3Month   Tier = "Paid 3 Month"
	TierPaid6Month   Tier = "Paid 6 Month"
	TierPaidLifetime Tier = "Paid Lifetime"
)

// Tier maps a paid plan to its label. Unknown plans map to the monthly tier.
func (p Plan) Tier() Tier {
	switch p {
	case PlanThreeMonth:
		return TierPaid3Month
	case PlanSixMonth:
		return TierPaid6Month
	case PlanLifetime:
		return TierPaidLifetime
	default:
		return TierPaidMonth
	}
}

// Class reports the index partition a tier belongs to.
func (t Tier) Class() TierClass {
	if t == TierFree {
		return ClassFree
	}
	return ClassPaid
}

// Classes lists tier classes in reconciliation order.
func Classes() []TierClass {
	return []TierClass{ClassFree, ClassPaid}
}
