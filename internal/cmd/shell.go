package cmd

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/ui"
	"github.com/gabriel-vasile/mimetype"
)

// session is what the interactive shell drives.
type session interface {
	ui.Controls
	SetPhotos(photos []string) error
}

var errQuit = errors.New("quit")

const shellHelp = `commands:
  mode <CHAOS|FORMED|CAROUSEL|PHOTO>   change the scene mode (controller)
  speed <float>                        set the rotation speed (controller)
  photos <file...>                     replace the photo list (controller)
  request                              ask the controller for control
  offer <user>                         hand control to a user (controller)
  accept | decline                     answer a control offer
  users | state                        show the roster or the scene
  leave                                leave the session and exit`

type shell struct {
	s     session
	leave func() error
	out   io.Writer
}

// exec runs one command line. errQuit ends the shell.
func (sh *shell) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprintln(sh.out, shellHelp)
		return nil

	case "mode":
		if len(args) != 1 {
			return fmt.Errorf("usage: mode <CHAOS|FORMED|CAROUSEL|PHOTO>")
		}
		m, err := protocol.ParseMode(strings.ToUpper(args[0]))
		if err != nil {
			return err
		}
		return sh.s.SetMode(m)

	case "speed":
		if len(args) != 1 {
			return fmt.Errorf("usage: speed <float>")
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid speed %q", args[0])
		}
		return sh.s.SetRotationSpeed(v)

	case "photos":
		if len(args) == 0 {
			return fmt.Errorf("usage: photos <file...>")
		}
		photos, err := encodePhotos(args)
		if err != nil {
			return err
		}
		if err := sh.s.SetPhotos(photos); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%s sent %d photos\n", ui.IconPhoto, len(photos))
		return nil

	case "request":
		return sh.s.RequestControl()

	case "offer":
		if len(args) != 1 {
			return fmt.Errorf("usage: offer <user>")
		}
		return sh.s.OfferControl(sh.resolve(args[0]))

	case "accept":
		return sh.s.AcceptControl()

	case "decline":
		return sh.s.DeclineControl()

	case "users", "who":
		fmt.Fprintln(sh.out, ui.RosterView(sh.s.Users(), sh.s.Controller(), sh.s.SelfID()))
		return nil

	case "state":
		sh.printState()
		return nil

	case "leave", "quit", "exit":
		if err := sh.leave(); err != nil {
			return err
		}
		return errQuit
	}
	return fmt.Errorf("unknown command %q, try help", cmd)
}

// resolve maps a display name to a user id. Ids pass through.
func (sh *shell) resolve(who string) string {
	for _, u := range sh.s.Users() {
		if u.ID == who {
			return u.ID
		}
	}
	for _, u := range sh.s.Users() {
		if strings.EqualFold(u.Name, who) {
			return u.ID
		}
	}
	return who
}

func (sh *shell) printState() {
	st := sh.s.State()
	fmt.Fprintln(sh.out, ui.SceneView(st.Mode, st.RotationSpeed, len(st.Photos)))
	role := "watching"
	if sh.s.IsController() {
		role = "in control"
	}
	fmt.Fprintf(sh.out, "you are %s\n", role)
	for _, r := range sh.s.Requests() {
		fmt.Fprintf(sh.out, "%s %s (%s) wants control\n", ui.IconBell, r.Name, r.ID)
	}
	if o, ok := sh.s.PendingOffer(); ok {
		fmt.Fprintf(sh.out, "%s %s offers you control\n", ui.IconGift, o.FromName)
	}
}

// encodePhotos turns image files into data URLs, the form browsers send.
func encodePhotos(paths []string) ([]string, error) {
	photos := make([]string, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		mtype := mimetype.Detect(data)
		if !strings.HasPrefix(mtype.String(), "image/") {
			return nil, fmt.Errorf("%s is %s, not an image", path, mtype.String())
		}
		photos = append(photos, fmt.Sprintf("data:%s;base64,%s", mtype.String(), base64.StdEncoding.EncodeToString(data)))
	}
	return photos, nil
}
