package model

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// probability floor inside the log of the cross-entropy
const logEpsilon = 1e-7

// network is one compiled graph over the model weights for a fixed batch
// size. Inputs are NCHW; targets are one-hot rows pre-scaled by 1/n so that
// padding rows contribute nothing to the loss.
type network struct {
	g          *G.ExprGraph
	x, y       *G.Node
	probs      *G.Node
	cost       *G.Node
	learnables G.Nodes
	vm         G.VM

	probsVal G.Value
	costVal  G.Value

	batch   int
	classes int
	xBuf    []float32
	yBuf    []float32
	xT, yT  *tensor.Dense
}

func newNetwork(m *Model, batch int, train bool) (*network, error) {
	in := m.arch.Input
	classes := m.arch.Classes()
	n := &network{
		g:       G.NewGraph(),
		batch:   batch,
		classes: classes,
		xBuf:    make([]float32, batch*in.Channels*in.Height*in.Width),
		yBuf:    make([]float32, batch*classes),
	}
	n.xT = tensor.New(tensor.WithShape(batch, in.Channels, in.Height, in.Width), tensor.WithBacking(n.xBuf))
	n.yT = tensor.New(tensor.WithShape(batch, classes), tensor.WithBacking(n.yBuf))

	n.x = G.NewTensor(n.g, tensor.Float32, 4, G.WithShape(batch, in.Channels, in.Height, in.Width), G.WithName("x"))
	n.y = G.NewMatrix(n.g, tensor.Float32, G.WithShape(batch, classes), G.WithName("y"))

	params := make(map[string]*G.Node, len(m.params))
	for _, p := range m.params {
		node := G.NewTensor(n.g, tensor.Float32, p.Value.Dims(),
			G.WithShape(p.Value.Shape()...), G.WithName(p.Name), G.WithValue(p.Value))
		params[p.Name] = node
		n.learnables = append(n.learnables, node)
	}

	h := n.x
	var err error
	for _, l := range m.arch.Layers {
		if h, err = n.layer(h, l, params); err != nil {
			return nil, errors.Wrapf(err, "layer %s", l.Name)
		}
	}
	n.probs = h

	stable, err := G.Add(n.probs, G.NewConstant(float32(logEpsilon)))
	if err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	logp, err := G.Log(stable)
	if err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	picked, err := G.HadamardProd(n.y, logp)
	if err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	total, err := G.Sum(picked)
	if err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	if n.cost, err = G.Neg(total); err != nil {
		return nil, errors.Wrap(err, "loss")
	}

	G.Read(n.probs, &n.probsVal)
	G.Read(n.cost, &n.costVal)

	if train {
		if _, err := G.Grad(n.cost, n.learnables...); err != nil {
			return nil, errors.Wrap(err, "gradients")
		}
		n.vm = G.NewTapeMachine(n.g, G.BindDualValues(n.learnables...))
	} else {
		n.vm = G.NewTapeMachine(n.g)
	}
	return n, nil
}

func (n *network) layer(h *G.Node, l LayerSpec, params map[string]*G.Node) (*G.Node, error) {
	var out *G.Node
	var err error
	switch l.Kind {
	case Conv2D:
		kernel := tensor.Shape{l.Kernel[0], l.Kernel[1]}
		if out, err = G.Conv2d(h, params[l.Name+"/kernel"], kernel, []int{0, 0}, []int{1, 1}, []int{1, 1}); err != nil {
			return nil, err
		}
		if out, err = G.BroadcastAdd(out, params[l.Name+"/bias"], nil, []byte{0, 2, 3}); err != nil {
			return nil, err
		}
	case MaxPooling2D:
		pool := tensor.Shape{l.Pool[0], l.Pool[1]}
		if out, err = G.MaxPool2D(h, pool, []int{0, 0}, []int{l.Pool[0], l.Pool[1]}); err != nil {
			return nil, err
		}
	case Flatten:
		s := h.Shape()
		if out, err = G.Reshape(h, tensor.Shape{s[0], s.TotalSize() / s[0]}); err != nil {
			return nil, err
		}
	case Dense:
		if out, err = G.Mul(h, params[l.Name+"/kernel"]); err != nil {
			return nil, err
		}
		if out, err = G.BroadcastAdd(out, params[l.Name+"/bias"], nil, []byte{0}); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unknown kind %q", l.Kind)
	}

	switch l.Activation {
	case ActivationReLU:
		return G.Rectify(out)
	case ActivationSoftmax:
		return G.SoftMax(out)
	}
	return out, nil
}

// load copies the samples at idx into the input buffers, converting NHWC
// pixels to NCHW, and writes the scaled one-hot targets. Rows past len(idx)
// are zeroed.
func (n *network) load(x []float32, labels []int, idx []int, h, w, c int) {
	size := h * w * c
	clear(n.xBuf)
	clear(n.yBuf)
	weight := float32(1) / float32(len(idx))
	for row, i := range idx {
		src := x[i*size : (i+1)*size]
		dst := n.xBuf[row*size : (row+1)*size]
		if c == 1 {
			copy(dst, src)
		} else {
			for y := 0; y < h; y++ {
				for xx := 0; xx < w; xx++ {
					for ch := 0; ch < c; ch++ {
						dst[ch*h*w+y*w+xx] = src[(y*w+xx)*c+ch]
					}
				}
			}
		}
		n.yBuf[row*n.classes+labels[i]] = weight
	}
}

// run executes one forward (and, for training graphs, backward) pass over
// the loaded buffers and returns the loss and the number of correct
// predictions among the first rows rows.
func (n *network) run(labels []int, idx []int) (loss float64, correct int, err error) {
	defer n.vm.Reset()
	if err = G.Let(n.x, n.xT); err != nil {
		return 0, 0, errors.Wrap(err, "bind inputs")
	}
	if err = G.Let(n.y, n.yT); err != nil {
		return 0, 0, errors.Wrap(err, "bind targets")
	}
	if err = n.vm.RunAll(); err != nil {
		return 0, 0, errors.Wrap(err, "run graph")
	}
	if loss, err = scalar(n.costVal); err != nil {
		return 0, 0, err
	}
	preds, err := n.predictions(len(idx))
	if err != nil {
		return 0, 0, err
	}
	for row, i := range idx {
		if preds[row] == labels[i] {
			correct++
		}
	}
	return loss, correct, nil
}

func (n *network) predictions(rows int) ([]int, error) {
	if n.probsVal == nil {
		return nil, errors.New("probabilities were not computed")
	}
	probs, ok := n.probsVal.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("unexpected probability type %T", n.probsVal.Data())
	}
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		row := probs[r*n.classes : (r+1)*n.classes]
		best := 0
		for c, p := range row {
			if p > row[best] {
				best = c
			}
		}
		out[r] = best
	}
	return out, nil
}

func scalar(v G.Value) (float64, error) {
	if v == nil {
		return 0, errors.New("loss was not computed")
	}
	switch d := v.Data().(type) {
	case float32:
		return float64(d), nil
	case float64:
		return d, nil
	case []float32:
		if len(d) == 1 {
			return float64(d[0]), nil
		}
	case []float64:
		if len(d) == 1 {
			return d[0], nil
		}
	}
	return 0, errors.Errorf("unexpected loss value %T", v.Data())
}
