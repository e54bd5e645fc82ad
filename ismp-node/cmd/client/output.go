package client

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/oasisprotocol/ismp/ismp/api"
	"github.com/oasisprotocol/ismp/ismp/host"
)

const (
	// CfgOutputFormat is the output format of the client commands.
	CfgOutputFormat = "client.output"

	outputTable = "table"
	outputJSON  = "json"
)

func writeClientList(w io.Writer, ids []api.ConsensusClientID) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Consensus client"})
	for _, id := range ids {
		table.Append([]string{id.String()})
	}
	table.Render()
}

func writeClientStatus(w io.Writer, status *host.ConsensusClientStatus) {
	summary := tablewriter.NewWriter(w)
	summary.SetHeader([]string{"Consensus client", "Frozen", "Expired", "Updated", "Challenge period"})
	summary.Append([]string{
		status.ID.String(),
		strconv.FormatBool(status.Frozen),
		strconv.FormatBool(status.Expired),
		status.UpdateTime.UTC().Format(time.RFC3339),
		status.ChallengePeriod.String(),
	})
	summary.Render()

	if len(status.StateMachines) == 0 {
		return
	}

	machines := tablewriter.NewWriter(w)
	machines.SetHeader([]string{"State machine", "Latest height", "Frozen at"})
	for _, sm := range status.StateMachines {
		frozen := "-"
		if sm.FrozenHeight != nil {
			frozen = fmt.Sprintf("%d", *sm.FrozenHeight)
		}
		machines.Append([]string{
			string(sm.ID.StateID),
			strconv.FormatUint(sm.LatestHeight, 10),
			frozen,
		})
	}
	machines.Render()
}
