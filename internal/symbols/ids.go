package symbols

import "github.com/google/uuid"

// Typed ID prefixes, matching the entity kinds in the data model.
const (
	PrefixTenant        = "tnt_"
	PrefixConversation   = "conv_"
	PrefixConfirmation   = "conf_"
	PrefixRun            = "run_"
	PrefixDagNode        = "node_"
	PrefixOrder          = "ord_"
	PrefixFill           = "fill_"
	PrefixRanking        = "rank_"
	PrefixEval           = "eval_"
	PrefixTicket         = "tkt_"
	PrefixToolCall       = "tc_"
	PrefixPortfolioSnap  = "psnap_"
	PrefixRequest        = "req_"
)

// NewID generates a stable opaque ID with the given typed prefix.
func NewID(prefix string) string {
	return prefix + uuid.NewString()
}
