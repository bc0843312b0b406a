package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/HoudaChairi/Ft-transcendence/internal/geom"
)

func TestDecodeRequests(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Request
	}{
		{"bare identify", `{"playerId":"alice"}`, Identify{PlayerID: "alice"}},
		{"identify with link", `{"playerId":"alice","tournamentLink":{"tournamentId":"t1","matchId":"t1_semi1"}}`,
			Identify{PlayerID: "alice", TournamentLink: &Link{TournamentID: "t1", MatchID: "t1_semi1"}}},
		{"typed identify", `{"type":"identify","playerId":"bob","encoding":"msgpack"}`,
			Identify{PlayerID: "bob", Encoding: "msgpack"}},
		{"move up", `{"action":"move","direction":"up"}`, Move{Direction: Up}},
		{"move down", `{"action":"move","direction":"down"}`, Move{Direction: Down}},
		{"stop", `{"action":"stop"}`, Stop{}},
		{"stop alias", `{"action":"stop_move"}`, Stop{}},
		{"invite", `{"type":"invite","recipient":"bob"}`, Invite{Recipient: "bob"}},
		{"invite response", `{"type":"invite_response","inviteId":"a|b","response":"accept"}`,
			InviteResponse{InviteID: "a|b", Response: Accept}},
		{"join tournament", `{"type":"join_tournament","playerId":"alice"}`, JoinTournament{PlayerID: "alice"}},
		{"join queue", `{"type":"join_queue"}`, JoinQueue{}},
		{"leave queue", `{"type":"leave_queue"}`, LeaveQueue{}},
		{"leave tournament", `{"type":"leave_tournament"}`, LeaveTournament{}},
		{"ping", `{"type":"ping"}`, Ping{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeTypeWinsOverPlayerID(t *testing.T) {
	got, err := Decode([]byte(`{"type":"join_tournament","playerId":"alice"}`))
	require.NoError(t, err)
	assert.Equal(t, ReqJoinTournament, Tag(got))
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `{nope`, ErrMalformed},
		{"empty object", `{}`, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"unknown type", `{"type":"teleport"}`, ErrUnknownType},
		{"unknown action", `{"action":"jump"}`, ErrUnknownType},
		{"bad direction", `{"action":"move","direction":"left"}`, ErrInvalidInput},
		{"bad answer", `{"type":"invite_response","inviteId":"a|b","response":"maybe"}`, ErrInvalidInput},
		{"invite without recipient", `{"type":"invite"}`, ErrMalformed},
		{"wrong field type", `{"type":"invite","recipient":42}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJSONCodecStampsType(t *testing.T) {
	data, err := JSONCodec{}.Encode(GameEnd{Winner: "alice", Reason: ReasonDisconnect, ScoreLeft: 2})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "game_end", out["type"])
	assert.Equal(t, "alice", out["winner"])
	assert.Equal(t, "disconnect", out["reason"])
	assert.EqualValues(t, 2, out["scoreLeft"])
}

func TestUpdateJSONShape(t *testing.T) {
	u := Update{
		PaddlePositions: []PaddlePosition{{PlayerID: "a", Role: "player1", Position: geom.Vec(-1300, 10), Direction: Up}},
		BallPosition:    geom.Vec(1, 2),
		BallDirection:   geom.Vec(750, 0),
		PaddleBoxes:     map[string]geom.Box{"player1": geom.BoxAround(geom.Vec(-1300, 10), 100, 280)},
	}
	data, err := JSONCodec{}.Encode(u)
	require.NoError(t, err)

	var out struct {
		Type            string `json:"type"`
		PaddlePositions []struct {
			Direction string `json:"direction"`
		} `json:"paddlePositions"`
		PaddleBoxes map[string]geom.Box `json:"paddleBoxes"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "update", out.Type)
	require.Len(t, out.PaddlePositions, 1)
	assert.Equal(t, "up", out.PaddlePositions[0].Direction)
	assert.Equal(t, -1400.0, out.PaddleBoxes["player1"].Min.X)
}

func TestMsgpackCodec(t *testing.T) {
	c := CodecFor(EncodingMsgpack)
	assert.True(t, c.Binary())
	assert.False(t, CodecFor("").Binary())

	data, err := c.Encode(Update{
		PaddlePositions: []PaddlePosition{{PlayerID: "a", Direction: Down}},
		ScoreRight:      3,
	})
	require.NoError(t, err)

	var u Update
	require.NoError(t, msgpack.Unmarshal(data, &u))
	assert.Equal(t, MsgUpdate, u.Type)
	assert.Equal(t, 3, u.ScoreRight)
	assert.Equal(t, Down, u.PaddlePositions[0].Direction)
}
