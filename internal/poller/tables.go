package poller

// Table names shared with the downstream evaluator.
const (
	EvaluationTable     = "jc_hc_curent"
	CallStagingTable    = "hc_curent_temp"
	CommentStagingTable = "hc_comment_temp"
	UnitStagingTable    = "hc_unitcount_temp"
)

// eventKey is the composite natural key of a dispatch event.
var eventKey = []string{"eid", "num_1", "ad_ts"}

// callColumns are the attribute columns copied from the archive per event.
var callColumns = []string{
	"ag_id", "tycod", "sub_tycod", "udts", "xdts",
	"estnum", "edirpre", "efeanme", "efeatyp", "xstreet1", "xstreet2", "esz",
}

var commentColumns = []string{"eid", "num_1", "ad_ts", "comments"}
