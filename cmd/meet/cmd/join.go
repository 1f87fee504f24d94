package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/config"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/media"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/meeting"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/peerlink"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/protocol"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/signalclient"
)

var (
	flagJoinName     string
	flagJoinID       string
	flagJoinServer   string
	flagJoinSTUN     string
	flagJoinTURN     string
	flagJoinTURNUser string
	flagJoinTURNPass string
	flagJoinNoVideo  bool
	flagJoinNoAudio  bool
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a meeting room",
	Long: `Join a meeting room on the signaling relay and connect to every
other participant.

While joined, lines typed on stdin are sent as chat. Commands:
  /screen   switch the outbound stream to screen share
  /camera   switch back to the camera
  /quit     leave the room`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJoin(args[0])
	},
}

func init() {
	joinCmd.Flags().StringVar(&flagJoinName, "name", "", "display name (default: Guest)")
	joinCmd.Flags().StringVar(&flagJoinID, "id", "", "participant id (default: random)")
	joinCmd.Flags().StringVar(&flagJoinServer, "server", "", "relay websocket URL")
	joinCmd.Flags().StringVar(&flagJoinSTUN, "stun", "", "STUN server")
	joinCmd.Flags().StringVar(&flagJoinTURN, "turn", "", "TURN server")
	joinCmd.Flags().StringVar(&flagJoinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagJoinTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVar(&flagJoinNoVideo, "no-video", false, "join without video")
	joinCmd.Flags().BoolVar(&flagJoinNoAudio, "no-audio", false, "join without audio")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(roomID string) error {
	cfg, err := config.Load(config.Options{
		ServerURL:  flagJoinServer,
		STUNServer: flagJoinSTUN,
		TURNServer: flagJoinTURN,
		TURNUser:   flagJoinTURNUser,
		TURNPass:   flagJoinTURNPass,
	})
	if err != nil {
		return err
	}

	userID := flagJoinID
	if userID == "" {
		userID = uuid.NewString()[:8]
	}
	userName := flagJoinName
	if userName == "" {
		userName = "Guest"
	}

	client := signalclient.NewClient(cfg.ServerURL)
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Close()

	mcfg := meeting.DefaultConfig()
	mcfg.ICEServers = cfg.ICEServers()

	coord := meeting.New(userID, userName, client, mcfg, meeting.Events{
		OnPeerState: func(remoteID string, state peerlink.State) {
			fmt.Printf("* %s: %s\n", remoteID, state)
		},
		OnPeerFailed: func(remoteID string, err error) {
			fmt.Printf("* could not connect to participant %s\n", remoteID)
		},
		OnChat: func(ev protocol.ChatEvent) {
			fmt.Printf("[%s] %s: %s\n", ev.Timestamp.Format("15:04:05"), ev.UserName, ev.Message)
		},
		OnMediaChange: func(ev protocol.MediaStateEvent) {
			fmt.Printf("* %s video=%v audio=%v\n", ev.UserID, ev.VideoEnabled, ev.AudioEnabled)
		},
		OnRoster: func(roster []protocol.ParticipantInfo) {
			names := make([]string, 0, len(roster))
			for _, p := range roster {
				names = append(names, p.Name)
			}
			fmt.Printf("* in room: %s\n", strings.Join(names, ", "))
		},
	})
	defer coord.Close()

	handler := signalclient.NewHandler(client)
	handler.OnRoomJoined = coord.HandleRoomJoined
	handler.OnUserJoined = coord.HandleUserJoined
	handler.OnUserLeft = coord.HandleUserLeft
	handler.OnSignal = coord.HandleSignal
	handler.OnChat = coord.HandleChat
	handler.OnMediaChange = coord.HandleMediaChange
	handler.OnError = func(text string) {
		fmt.Fprintln(os.Stderr, "relay error:", text)
	}

	disconnected := make(chan struct{})
	handler.OnDisconnect = func() { close(disconnected) }
	go handler.Start()

	stream, err := media.Acquire(media.KindCamera, !flagJoinNoVideo, !flagJoinNoAudio)
	if err != nil {
		return fmt.Errorf("acquire media: %w", err)
	}
	coord.SetLocalStream(stream)

	client.JoinRoom(roomID, userID, userName)
	fmt.Printf("joined %s as %s (%s)\n", roomID, userName, userID)

	// Leave cleanly on interrupt too; device tracks must always stop.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-interrupt:
			return nil
		case <-disconnected:
			fmt.Println("relay connection lost")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(line) {
			case "":
			case "/quit":
				return nil
			case "/screen":
				s, err := media.Acquire(media.KindScreen, true, !flagJoinNoAudio)
				if err != nil {
					fmt.Fprintln(os.Stderr, "screen share failed:", err)
					continue
				}
				coord.SetLocalStream(s)
				fmt.Println("* sharing screen")
			case "/camera":
				s, err := media.Acquire(media.KindCamera, !flagJoinNoVideo, !flagJoinNoAudio)
				if err != nil {
					fmt.Fprintln(os.Stderr, "camera switch failed:", err)
					continue
				}
				coord.SetLocalStream(s)
				fmt.Println("* back to camera")
			default:
				coord.SendChat(line)
			}
		}
	}
}
