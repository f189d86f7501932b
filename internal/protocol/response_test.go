package protocol

import (
	"errors"
	"testing"
)

func TestParseResponseStringContent(t *testing.T) {
	seqNo, content, err := ParseResponse(`do local ret={序号=7,内容="#Y/登录成功"} return ret end`)
	if err != nil {
		t.Fatal(err)
	}
	if seqNo != 7 {
		t.Errorf("seqNo = %d, want 7", seqNo)
	}
	if content != "#Y/登录成功" {
		t.Errorf("content = %q", content)
	}
	if IsTableContent(content) {
		t.Error("string content reported as table")
	}
}

func TestParseResponseTableContent(t *testing.T) {
	raw := `do local ret={序号=2,内容={["昵称"]="测试",["等级"]=175,["帮派"]={["名称"]="无门派"}}} return ret end`
	seqNo, content, err := ParseResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if seqNo != 2 {
		t.Errorf("seqNo = %d, want 2", seqNo)
	}
	want := `{["昵称"]="测试",["等级"]=175,["帮派"]={["名称"]="无门派"}}`
	if content != want {
		t.Errorf("content = %q\nwant %q", content, want)
	}
	if !IsTableContent(content) {
		t.Error("table content not reported as table")
	}
}

func TestParseResponseWhitespaceTolerant(t *testing.T) {
	seqNo, content, err := ParseResponse(`do local ret={序号 = 999, 内容 = "密码错误"} return ret end`)
	if err != nil {
		t.Fatal(err)
	}
	if seqNo != 999 || content != "密码错误" {
		t.Errorf("got seq=%d content=%q", seqNo, content)
	}
}

func TestParseResponseEscapedQuote(t *testing.T) {
	_, content, err := ParseResponse(`do local ret={序号=6,内容="he said \"hi\""} return ret end`)
	if err != nil {
		t.Fatal(err)
	}
	if content != `he said \"hi\"` {
		t.Errorf("content = %q", content)
	}
}

func TestParseResponseMalformed(t *testing.T) {
	cases := []string{
		"",
		"do local ret={} return ret end",
		`do local ret={序号=3} return ret end`,
		`do local ret={序号=3,内容=} return ret end`,
		`do local ret={序号=3,内容=42} return ret end`,
		`do local ret={序号=3,内容="unterminated} return ret end`,
		`do local ret={序号=3,内容={["a"]="b" return ret end`,
	}
	for _, raw := range cases {
		if _, _, err := ParseResponse(raw); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("ParseResponse(%q) err = %v, want ErrMalformedResponse", raw, err)
		}
	}
}

func TestParseResponseSeqInsideContentDoesNotShadow(t *testing.T) {
	seqNo, content, err := ParseResponse(`do local ret={序号=8,内容="公告: 序号=1 已发布"} return ret end`)
	if err != nil {
		t.Fatal(err)
	}
	if seqNo != 8 {
		t.Errorf("seqNo = %d, want 8", seqNo)
	}
	if content != "公告: 序号=1 已发布" {
		t.Errorf("content = %q", content)
	}
}
