// Package loader reads and writes pretrained model files.
//
// It implements:
//   - SafeTensors reading, with F32, F16 and BF16 weights converted to float32
//   - SafeTensors writing, used to save fine-tuned weights
//   - Hugging Face config.json loading
//   - checkpoint name mapping (wrapper prefixes, legacy gamma/beta names)
//
// Example:
//
//	r, err := loader.NewSafeTensorsReader("bert-base-uncased/model.safetensors")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	weights, err := r.LoadAll(loader.NewHFMapper("bert"))
package loader
