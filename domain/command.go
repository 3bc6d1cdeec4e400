package domain

import (
	"strings"
)

// IntentKind is the closed set of things a user line can mean.
type IntentKind int

const (
	IntentInvalid IntentKind = iota
	IntentIdentify
	IntentJoinChannel
	IntentLeaveChannel
	IntentSendMessage
	IntentUserInfo
	IntentReadChannel
	IntentExit
	IntentBang
)

var intentNames = map[IntentKind]string{
	IntentInvalid:      "Invalid",
	IntentIdentify:     "Identify",
	IntentJoinChannel:  "JoinChannel",
	IntentLeaveChannel: "LeaveChannel",
	IntentSendMessage:  "SendMessage",
	IntentUserInfo:     "UserInfo",
	IntentReadChannel:  "ReadChannel",
	IntentExit:         "Exit",
	IntentBang:         "BangCommand",
}

func (k IntentKind) String() string {
	if name, ok := intentNames[k]; ok {
		return name
	}
	return intentNames[IntentInvalid]
}

// BangName is a recognised "!" command.
type BangName string

const (
	BangHelp    BangName = "help"
	BangWeather BangName = "weather"
	BangFact    BangName = "fact"
	BangWhoami  BangName = "whoami"
)

const bangPrefix = "!"

var menuChoices = map[string]IntentKind{
	"1": IntentIdentify,
	"2": IntentJoinChannel,
	"3": IntentLeaveChannel,
	"4": IntentSendMessage,
	"5": IntentUserInfo,
	"6": IntentReadChannel,
	"7": IntentExit,
}

var bangCommands = map[BangName]struct{}{
	BangHelp:    {},
	BangWeather: {},
	BangFact:    {},
	BangWhoami:  {},
}

// Intent is the parsed form of one input line.
// Bang and Arg are only set for IntentBang.
type Intent struct {
	Kind IntentKind
	Bang BangName
	Arg  string
	Raw  string
}

func (i Intent) HasArg() bool {
	return i.Arg != ""
}

// ParseIntent classifies a raw line. It never fails: anything it cannot
// recognise becomes IntentInvalid.
func ParseIntent(line string) Intent {
	raw := strings.TrimSpace(line)
	if kind, ok := menuChoices[raw]; ok {
		return Intent{Kind: kind, Raw: raw}
	}
	if !strings.HasPrefix(raw, bangPrefix) {
		return Intent{Kind: IntentInvalid, Raw: raw}
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(raw, bangPrefix), " ")
	bang := BangName(name)
	if _, ok := bangCommands[bang]; !ok {
		return Intent{Kind: IntentInvalid, Raw: raw}
	}
	return Intent{Kind: IntentBang, Bang: bang, Arg: strings.TrimSpace(arg), Raw: raw}
}
