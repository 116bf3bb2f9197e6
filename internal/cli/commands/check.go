package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/radiogate/radiogate/internal/cli/ui"
	"github.com/radiogate/radiogate/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and show the resulting setup",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	ui.OutputLine("%s", ui.SuccessStyle.Render("configuration OK"))
	ui.OutputLine("callsign: %s  data dir: %s  pipelined: %v",
		cfg.Callsign, cfg.DataDir, cfg.Pipelined)
	ui.OutputLine("forwarding: enabled=%v interval=%s",
		cfg.Forwarding.Enabled, cfg.Forwarding.Interval.AsDuration())

	ui.PrintSectionHeader("Mail accounts", len(cfg.Mail.Accounts))
	acctTbl := ui.NewTable("HOST", "USER", "TLS", "INTERVAL", "ACTION")
	for _, a := range cfg.Mail.Accounts {
		acctTbl.AddRow(a.Host, a.User, a.TLS,
			fmt.Sprintf("%dm", a.IntervalMinutes), a.Action)
	}
	acctTbl.Print()

	ui.PrintSectionHeader("Access rules", len(cfg.Mail.Rules))
	ruleTbl := ui.NewTable("#", "STATION", "PERMISSION", "ADDRESS PATTERN")
	for i, r := range cfg.Mail.Rules {
		ruleTbl.AddRow(i+1, r.Station, r.Permission, r.Address)
	}
	ruleTbl.Print()

	ui.PrintSectionHeader("Tunnel ports", len(cfg.Tunnel.Ports))
	ports := make([]int, 0, len(cfg.Tunnel.Ports))
	for port := range cfg.Tunnel.Ports {
		ports = append(ports, port)
	}
	sort.Ints(ports)
	portTbl := ui.NewTable("PORT", "TARGET")
	for _, port := range ports {
		portTbl.AddRow(port, cfg.Tunnel.Ports[port])
	}
	portTbl.Print()

	if !cfg.Mail.GatewayEnabled {
		ui.OutputLine("\n%s", ui.WarningStyle.Render("mail gateway is disabled"))
	}
	return nil
}
